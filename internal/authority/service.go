package authority

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/phantom-auth/authority/internal/ids"
	"github.com/phantom-auth/authority/internal/obs"
	"github.com/phantom-auth/authority/internal/vault"
)

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
	maxTokenAttempts     = 3
)

// ActivityRecorder persists audit entries. Failures are logged by the caller,
// never surfaced to the party being authenticated.
type ActivityRecorder interface {
	Record(ctx context.Context, entry *ActivityLog) error
}

// Notifier delivers events out of band. Notify must not block.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Service is the authentication and session authority. It holds no state
// between calls; every entity lives in the Store.
type Service struct {
	store    Store
	hasher   vault.Hasher
	recorder ActivityRecorder
	notifier Notifier
	now      func() time.Time
	log      *zap.Logger

	concealReasons bool
	singleSession  bool
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithHasher overrides the credential vault.
func WithHasher(h vault.Hasher) ServiceOption {
	return func(s *Service) error {
		if h == nil {
			return errors.New("authority: hasher is nil")
		}
		s.hasher = h
		return nil
	}
}

// WithRecorder overrides where activity entries are written.
func WithRecorder(r ActivityRecorder) ServiceOption {
	return func(s *Service) error {
		if r != nil {
			s.recorder = r
		}
		return nil
	}
}

// WithNotifier sets the webhook notifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) error {
		if n != nil {
			s.notifier = n
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithLogger sets the logger for internal failures.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// WithConcealedReasons makes every non-internal login failure surface as
// ErrInvalidCredentials. The activity log keeps the precise kind.
func WithConcealedReasons(on bool) ServiceOption {
	return func(s *Service) error {
		s.concealReasons = on
		return nil
	}
}

// WithSingleSession terminates an account's other sessions whenever a new one opens.
func WithSingleSession(on bool) ServiceOption {
	return func(s *Service) error {
		s.singleSession = on
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("authority: store is nil")
	}
	svc := &Service{
		store:    store,
		hasher:   vault.New(vault.DefaultCost),
		notifier: nopNotifier{},
		now:      time.Now,
		log:      obs.Logger(),
	}
	svc.recorder = storeRecorder{store: store}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	svc.log = svc.log.With(obs.Component("authority"))
	return svc, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// record writes entry, detached from ctx cancellation so an aborted caller
// still leaves its audit row.
func (s *Service) record(ctx context.Context, entry *ActivityLog) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock()
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Error("activity record failed",
			obs.AppID(entry.ApplicationID), obs.Event(entry.Event), zap.Error(err))
	}
}

func (s *Service) emit(ctx context.Context, typ, appID, userID string, data map[string]any) {
	s.notifier.Notify(context.WithoutCancel(ctx), Event{
		ID:            ids.New(),
		Type:          typ,
		ApplicationID: appID,
		AppUserID:     userID,
		Data:          data,
		OccurredAt:    s.clock(),
	})
}

// adminRecord writes a successful administrative activity entry and emits the matching webhook.
func (s *Service) adminRecord(ctx context.Context, appID, userID, activity, webhookEvent string, meta map[string]string) {
	entry := &ActivityLog{
		ApplicationID: appID,
		Event:         activity,
		Success:       true,
		Metadata:      meta,
	}
	if userID != "" {
		entry.AppUserID = &userID
	}
	s.record(ctx, entry)
	if webhookEvent != "" {
		data := make(map[string]any, len(meta))
		for k, v := range meta {
			data[k] = v
		}
		s.emit(ctx, webhookEvent, appID, userID, data)
	}
}

type storeRecorder struct {
	store Store
}

func (r storeRecorder) Record(ctx context.Context, entry *ActivityLog) error {
	return r.store.Activity(ctx).Append(ctx, entry)
}

// Notifiers fans each event out to every notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, evt Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, evt)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultActivityLimit
	case limit > maxActivityLimit:
		return maxActivityLimit
	}
	return limit
}
