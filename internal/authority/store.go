package authority

import (
	"context"
	"time"
)

// Store describes persistence operations required by the authority.
// Implementations map missing rows to ErrNotFound and uniqueness
// violations to ErrConflict.
type Store interface {
	Applications(ctx context.Context) ApplicationStore
	AppUsers(ctx context.Context) AppUserStore
	Blacklist(ctx context.Context) BlacklistStore
	Sessions(ctx context.Context) SessionStore
	Activity(ctx context.Context) ActivityStore
	Webhooks(ctx context.Context) WebhookStore
}

// ApplicationStore manages tenants.
type ApplicationStore interface {
	Create(ctx context.Context, app *Application) error
	Find(ctx context.Context, id string) (*Application, error)
	FindByAPIKey(ctx context.Context, apiKey string) (*Application, error)
	List(ctx context.Context) ([]*Application, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Application, error)
	// Update writes name, description, api key, active flag and updated_at.
	Update(ctx context.Context, app *Application) error
	// Delete removes the application and every record scoped to it.
	Delete(ctx context.Context, id string) error
}

// AppUserStore manages license holders. Every method is scoped by application id.
type AppUserStore interface {
	Create(ctx context.Context, u *AppUser) error
	Find(ctx context.Context, appID, id string) (*AppUser, error)
	FindByUsername(ctx context.Context, appID, username string) (*AppUser, error)
	FindByEmail(ctx context.Context, appID, email string) (*AppUser, error)
	ListByApplication(ctx context.Context, appID string) ([]*AppUser, error)
	// Update writes username, email, password hash, expiry and updated_at.
	// Binding and pause state are only changed through their dedicated methods.
	Update(ctx context.Context, u *AppUser) error
	Delete(ctx context.Context, appID, id string) error
	SetPaused(ctx context.Context, appID, id string, paused bool, at time.Time) error
	// BindHWID sets hwid only if the account is currently unbound and reports
	// whether this call performed the write.
	BindHWID(ctx context.Context, appID, id, hwid string, at time.Time) (bool, error)
	// SetHWID overwrites the binding unconditionally; nil clears it.
	SetHWID(ctx context.Context, appID, id string, hwid *string, at time.Time) error
	TouchLogin(ctx context.Context, appID, id string, at time.Time) error
}

// BlacklistStore manages deny-list entries.
type BlacklistStore interface {
	Create(ctx context.Context, e *BlacklistEntry) error
	Find(ctx context.Context, appID, id string) (*BlacklistEntry, error)
	// Match returns the active entry for (appID, typ, value) or ErrNotFound.
	Match(ctx context.Context, appID string, typ BlacklistType, value string) (*BlacklistEntry, error)
	ListByApplication(ctx context.Context, appID string) ([]*BlacklistEntry, error)
	// Deactivate reports whether an active entry was switched off.
	Deactivate(ctx context.Context, appID, id string) (bool, error)
	Delete(ctx context.Context, appID, id string) error
}

// SessionStore manages live sessions. Sessions are never physically deleted by
// the authority; termination flips IsActive.
type SessionStore interface {
	// Create inserts s. With replaceActive, every other active session of the
	// same account is deactivated in the same atomic operation.
	Create(ctx context.Context, s *Session, replaceActive bool) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	// Touch bumps last activity of an active session and reports whether one matched.
	Touch(ctx context.Context, token string, at time.Time) (bool, error)
	// Deactivate reports whether an active session was switched off.
	Deactivate(ctx context.Context, token string) (bool, error)
	DeactivateByUser(ctx context.Context, appID, userID string) (int, error)
	// DeactivateIdle switches off every active session last seen before cutoff.
	DeactivateIdle(ctx context.Context, before time.Time) (int, error)
	ListActive(ctx context.Context, appID string) ([]*Session, error)
	ListByUser(ctx context.Context, appID, userID string) ([]*Session, error)
}

// ActivityStore appends immutable entries and reads them newest first.
type ActivityStore interface {
	Append(ctx context.Context, entry *ActivityLog) error
	List(ctx context.Context, appID string, limit int) ([]*ActivityLog, error)
	ListByUser(ctx context.Context, appID, userID string, limit int) ([]*ActivityLog, error)
}

// WebhookStore manages webhook subscriptions.
type WebhookStore interface {
	Create(ctx context.Context, w *Webhook) error
	Find(ctx context.Context, appID, id string) (*Webhook, error)
	ListByApplication(ctx context.Context, appID string) ([]*Webhook, error)
	// Update writes url, secret, events, active flag and updated_at.
	Update(ctx context.Context, w *Webhook) error
	Delete(ctx context.Context, appID, id string) error
}
