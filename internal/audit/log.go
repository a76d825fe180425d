package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/authority"
	"github.com/phantom-auth/authority/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func contextFields(ctx context.Context) []zap.Field {
	fields := []zap.Field{zap.String("type", "audit")}
	if rid := RequestIDFromContext(ctx); rid != "" {
		fields = append(fields, obs.RequestID(rid))
	}
	if id := auth.OperatorID(ctx); id != "" {
		fields = append(fields, zap.String("operator_id", id))
	}
	return fields
}

// LogEvent writes an operator audit entry enriched with request and operator context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := append(contextFields(ctx), obs.Event(event))
	if fields == nil {
		fields = map[string]any{}
	}
	zf = append(zf, zap.Any("fields", fields))
	obs.Logger().Info("audit", zf...)
	return nil
}

// Recorder persists activity entries through the store and mirrors each one
// as an audit log line, so the trail survives a storage outage in the logs.
type Recorder struct {
	store authority.Store
	log   *zap.Logger
}

// NewRecorder returns a Recorder writing to store. A nil logger uses obs.Logger.
func NewRecorder(store authority.Store, log *zap.Logger) *Recorder {
	if log == nil {
		log = obs.Logger()
	}
	return &Recorder{store: store, log: log.With(obs.Component("audit"))}
}

// Record implements authority.ActivityRecorder.
func (r *Recorder) Record(ctx context.Context, entry *authority.ActivityLog) error {
	err := r.store.Activity(ctx).Append(ctx, entry)

	fields := append(contextFields(ctx),
		obs.Event(entry.Event),
		obs.AppID(entry.ApplicationID),
		zap.Bool("success", entry.Success),
		zap.Bool("persisted", err == nil),
	)
	if entry.AppUserID != nil {
		fields = append(fields, obs.UserID(*entry.AppUserID))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.IP != "" {
		fields = append(fields, obs.RemoteIP(entry.IP))
	}
	if entry.HWID != "" {
		fields = append(fields, zap.String("hwid", entry.HWID))
	}
	if len(entry.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", entry.Metadata))
	}
	r.log.Info("activity", fields...)
	return err
}
