package authority

import (
	"context"
	"strings"
	"time"
)

// AccountState is the derived lifecycle state of an app user.
type AccountState int

const (
	StateActive AccountState = iota
	StatePaused
	StateExpired
	StateDeleted
)

func (s AccountState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateExpired:
		return "expired"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

// StateOf derives the state of u at now. Expiry is not stored: an account is
// expired from the instant now reaches ExpiresAt. Expired wins over Paused.
func StateOf(u *AppUser, now time.Time) AccountState {
	switch {
	case u == nil:
		return StateDeleted
	case u.ExpiresAt != nil && !now.Before(*u.ExpiresAt):
		return StateExpired
	case u.IsPaused:
		return StatePaused
	}
	return StateActive
}

// CheckEligible returns the login-blocking reason for u at now, or nil.
func CheckEligible(u *AppUser, now time.Time) error {
	switch StateOf(u, now) {
	case StateDeleted:
		return ErrAccountDeleted
	case StateExpired:
		return ErrAccountExpired
	case StatePaused:
		return ErrAccountPaused
	}
	return nil
}

// PauseUser pauses an account. Pausing a paused account succeeds.
func (s *Service) PauseUser(ctx context.Context, appID, userID string) (*AppUser, error) {
	return s.setPaused(ctx, appID, userID, true)
}

// UnpauseUser reactivates a paused account. Unpausing an active account succeeds.
func (s *Service) UnpauseUser(ctx context.Context, appID, userID string) (*AppUser, error) {
	return s.setPaused(ctx, appID, userID, false)
}

func (s *Service) setPaused(ctx context.Context, appID, userID string, paused bool) (*AppUser, error) {
	appID, userID = strings.TrimSpace(appID), strings.TrimSpace(userID)
	if appID == "" || userID == "" {
		return nil, ErrInvalidInput
	}
	users := s.store.AppUsers(ctx)
	if err := users.SetPaused(ctx, appID, userID, paused, s.clock()); err != nil {
		return nil, err
	}
	u, err := users.Find(ctx, appID, userID)
	if err != nil {
		return nil, err
	}
	activity, event := ActivityUserUnpaused, EventUserUnpaused
	if paused {
		activity, event = ActivityUserPaused, EventUserPaused
	}
	s.adminRecord(ctx, appID, userID, activity, event, map[string]string{"username": u.Username})
	return u, nil
}
