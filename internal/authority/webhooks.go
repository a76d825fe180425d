package authority

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/phantom-auth/authority/internal/ids"
)

const webhookSecretLength = 32

// NewWebhook carries the fields accepted when subscribing a webhook. An empty
// secret is generated.
type NewWebhook struct {
	URL    string
	Secret string
	Events []string
}

// WebhookUpdate is the closed set of mutable webhook fields. Nil means unchanged.
type WebhookUpdate struct {
	URL      *string
	Secret   *string
	Events   []string
	IsActive *bool
}

// CreateWebhook subscribes url to events.
func (s *Service) CreateWebhook(ctx context.Context, appID string, in NewWebhook) (*Webhook, error) {
	target, err := validateWebhookURL(in.URL)
	if err != nil {
		return nil, err
	}
	events, err := normalizeEvents(in.Events)
	if err != nil {
		return nil, err
	}
	secret := strings.TrimSpace(in.Secret)
	if secret == "" {
		if secret, err = ids.RandomString(webhookSecretLength); err != nil {
			return nil, internal(err)
		}
	}
	now := s.clock()
	w := &Webhook{
		ID:            ids.New(),
		ApplicationID: appID,
		URL:           target,
		Secret:        secret,
		Events:        events,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Webhooks(ctx).Create(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// GetWebhook returns one subscription.
func (s *Service) GetWebhook(ctx context.Context, appID, id string) (*Webhook, error) {
	return s.store.Webhooks(ctx).Find(ctx, appID, id)
}

// ListWebhooks returns every subscription of an application.
func (s *Service) ListWebhooks(ctx context.Context, appID string) ([]*Webhook, error) {
	return s.store.Webhooks(ctx).ListByApplication(ctx, appID)
}

// UpdateWebhook applies upd.
func (s *Service) UpdateWebhook(ctx context.Context, appID, id string, upd WebhookUpdate) (*Webhook, error) {
	if upd.URL == nil && upd.Secret == nil && upd.Events == nil && upd.IsActive == nil {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	hooks := s.store.Webhooks(ctx)
	w, err := hooks.Find(ctx, appID, id)
	if err != nil {
		return nil, err
	}
	if upd.URL != nil {
		target, err := validateWebhookURL(*upd.URL)
		if err != nil {
			return nil, err
		}
		w.URL = target
	}
	if upd.Secret != nil {
		secret := strings.TrimSpace(*upd.Secret)
		if secret == "" {
			return nil, fmt.Errorf("%w: secret is empty", ErrInvalidInput)
		}
		w.Secret = secret
	}
	if upd.Events != nil {
		events, err := normalizeEvents(upd.Events)
		if err != nil {
			return nil, err
		}
		w.Events = events
	}
	if upd.IsActive != nil {
		w.IsActive = *upd.IsActive
	}
	w.UpdatedAt = s.clock()
	if err := hooks.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// DeleteWebhook removes a subscription.
func (s *Service) DeleteWebhook(ctx context.Context, appID, id string) error {
	return s.store.Webhooks(ctx).Delete(ctx, appID, id)
}

// ActiveWebhooksFor returns the active subscriptions of appID that want event.
func (s *Service) ActiveWebhooksFor(ctx context.Context, appID, event string) ([]*Webhook, error) {
	all, err := s.store.Webhooks(ctx).ListByApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, w := range all {
		if w.Subscribed(event) {
			out = append(out, w)
		}
	}
	return out, nil
}

func validateWebhookURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: webhook url must be an absolute http(s) url", ErrInvalidInput)
	}
	return u.String(), nil
}

func normalizeEvents(events []string) ([]string, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: at least one event is required", ErrInvalidInput)
	}
	out := make([]string, 0, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e != "*" && !slices.Contains(WebhookEvents, e) {
			return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidInput, e)
		}
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out, nil
}
