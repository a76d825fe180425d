package authority

import (
	"slices"
	"time"
)

// Application is a tenant. Every other record is scoped to one.
type Application struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	APIKey      string    `json:"api_key"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AppUser is a license holder registered under an application.
type AppUser struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	Username      string     `json:"username"`
	Email         *string    `json:"email,omitempty"`
	PasswordHash  string     `json:"-"`
	HWID          *string    `json:"hwid,omitempty"`
	IsPaused      bool       `json:"is_paused"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (u *AppUser) clone() *AppUser {
	if u == nil {
		return nil
	}
	out := *u
	out.Email = cloneString(u.Email)
	out.HWID = cloneString(u.HWID)
	out.ExpiresAt = cloneTime(u.ExpiresAt)
	out.LastLoginAt = cloneTime(u.LastLoginAt)
	return &out
}

// Session is a live proof of a successful login. Token is the bearer credential.
type Session struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	AppUserID     string    `json:"app_user_id"`
	Token         string    `json:"-"`
	HWID          string    `json:"hwid,omitempty"`
	IP            string    `json:"ip,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// BlacklistType discriminates which login attribute a deny-list entry matches.
type BlacklistType string

const (
	BlacklistHWID     BlacklistType = "hwid"
	BlacklistIP       BlacklistType = "ip"
	BlacklistUsername BlacklistType = "username"
	BlacklistEmail    BlacklistType = "email"
)

// Valid reports whether t is a known discriminator.
func (t BlacklistType) Valid() bool {
	switch t {
	case BlacklistHWID, BlacklistIP, BlacklistUsername, BlacklistEmail:
		return true
	}
	return false
}

// BlacklistEntry blocks logins presenting Value for Type within one application.
type BlacklistEntry struct {
	ID            string        `json:"id"`
	ApplicationID string        `json:"application_id"`
	Type          BlacklistType `json:"type"`
	Value         string        `json:"value"`
	Reason        string        `json:"reason,omitempty"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ActivityLog is an append-only audit record.
type ActivityLog struct {
	ID            string            `json:"id"`
	ApplicationID string            `json:"application_id"`
	AppUserID     *string           `json:"app_user_id,omitempty"`
	Event         string            `json:"event"`
	Success       bool              `json:"success"`
	Detail        string            `json:"detail,omitempty"`
	IP            string            `json:"ip,omitempty"`
	HWID          string            `json:"hwid,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Webhook is an outbound notification subscription.
type Webhook struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	URL           string    `json:"url"`
	Secret        string    `json:"-"`
	Events        []string  `json:"events"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Subscribed reports whether the webhook wants event. "*" subscribes to everything.
func (w *Webhook) Subscribed(event string) bool {
	if w == nil || !w.IsActive {
		return false
	}
	return slices.Contains(w.Events, event) || slices.Contains(w.Events, "*")
}

// Event is a significant occurrence handed to the Notifier.
type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	ApplicationID string         `json:"application_id"`
	AppUserID     string         `json:"app_user_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Webhook event types.
const (
	EventLoginSuccess       = "login.success"
	EventLoginFailure       = "login.failure"
	EventHWIDBound          = "hwid.bound"
	EventHWIDReset          = "hwid.reset"
	EventHWIDSet            = "hwid.set"
	EventUserCreated        = "user.created"
	EventUserUpdated        = "user.updated"
	EventUserDeleted        = "user.deleted"
	EventUserPaused         = "user.paused"
	EventUserUnpaused       = "user.unpaused"
	EventSessionTerminated  = "session.terminated"
	EventBlacklistAdded     = "blacklist.added"
	EventBlacklistRemoved   = "blacklist.removed"
	EventApplicationUpdated = "application.updated"
)

// WebhookEvents lists every event type a webhook may subscribe to.
var WebhookEvents = []string{
	EventLoginSuccess, EventLoginFailure,
	EventHWIDBound, EventHWIDReset, EventHWIDSet,
	EventUserCreated, EventUserUpdated, EventUserDeleted, EventUserPaused, EventUserUnpaused,
	EventSessionTerminated, EventBlacklistAdded, EventBlacklistRemoved, EventApplicationUpdated,
}

// Activity log event names. Login attempts use "login.<outcome kind>".
const (
	ActivityLoginSuccess      = "login.success"
	ActivitySessionTerminated = "session.terminated"
	ActivityUserCreated       = "user.created"
	ActivityUserUpdated       = "user.updated"
	ActivityUserDeleted       = "user.deleted"
	ActivityUserPaused        = "user.paused"
	ActivityUserUnpaused      = "user.unpaused"
	ActivityHWIDReset         = "hwid.reset"
	ActivityHWIDSet           = "hwid.set"
	ActivityBlacklistAdded    = "blacklist.added"
	ActivityBlacklistRemoved  = "blacklist.removed"
	ActivityBlacklistDeleted  = "blacklist.deleted"
)

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
