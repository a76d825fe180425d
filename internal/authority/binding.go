package authority

import (
	"context"
	"fmt"
	"strings"
)

// BindingResult is the outcome of resolving a presented hardware fingerprint.
type BindingResult int

const (
	BindingBound BindingResult = iota
	BindingFirstBind
	BindingMismatch
)

func (r BindingResult) String() string {
	switch r {
	case BindingBound:
		return "bound"
	case BindingFirstBind:
		return "first_bind"
	case BindingMismatch:
		return "mismatch"
	}
	return "unknown"
}

// MarshalText renders the result as its string form in JSON.
func (r BindingResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ResolveBinding decides whether presented matches the account binding.
// An unbound account is bound to the first non-empty fingerprint with a
// compare-and-set; a concurrent loser re-reads and sees Bound or Mismatch.
// On FirstBind u.HWID is updated in place.
func (s *Service) ResolveBinding(ctx context.Context, u *AppUser, presented string) (BindingResult, error) {
	if u == nil {
		return BindingMismatch, ErrAccountDeleted
	}
	presented = strings.TrimSpace(presented)

	if u.HWID != nil {
		if presented != "" && *u.HWID == presented {
			return BindingBound, nil
		}
		return BindingMismatch, nil
	}
	if presented == "" {
		// Nothing to enforce and nothing to bind.
		return BindingBound, nil
	}
	if len(presented) > maxHWIDLength {
		return BindingMismatch, nil
	}

	users := s.store.AppUsers(ctx)
	won, err := users.BindHWID(ctx, u.ApplicationID, u.ID, presented, s.clock())
	if err != nil {
		return BindingMismatch, internal(err)
	}
	if won {
		hwid := presented
		u.HWID = &hwid
		s.emit(ctx, EventHWIDBound, u.ApplicationID, u.ID, map[string]any{
			"username": u.Username,
			"hwid":     presented,
		})
		return BindingFirstBind, nil
	}

	current, err := users.Find(ctx, u.ApplicationID, u.ID)
	if err != nil {
		return BindingMismatch, internal(err)
	}
	u.HWID = cloneString(current.HWID)
	if current.HWID != nil && *current.HWID == presented {
		return BindingBound, nil
	}
	return BindingMismatch, nil
}

// ResetBinding clears the hardware binding so the next login binds afresh.
func (s *Service) ResetBinding(ctx context.Context, appID, userID string) (*AppUser, error) {
	users := s.store.AppUsers(ctx)
	prev, err := users.Find(ctx, appID, userID)
	if err != nil {
		return nil, err
	}
	if err := users.SetHWID(ctx, appID, userID, nil, s.clock()); err != nil {
		return nil, err
	}
	u, err := users.Find(ctx, appID, userID)
	if err != nil {
		return nil, err
	}
	meta := map[string]string{"username": u.Username}
	if prev.HWID != nil {
		meta["previous_hwid"] = *prev.HWID
	}
	s.adminRecord(ctx, appID, userID, ActivityHWIDReset, EventHWIDReset, meta)
	return u, nil
}

// ForceSetBinding overwrites the hardware binding, bypassing resolution.
func (s *Service) ForceSetBinding(ctx context.Context, appID, userID, hwid string) (*AppUser, error) {
	hwid = strings.TrimSpace(hwid)
	if hwid == "" {
		return nil, fmt.Errorf("%w: hwid is required", ErrInvalidInput)
	}
	if len(hwid) > maxHWIDLength {
		return nil, fmt.Errorf("%w: hwid too long", ErrInvalidInput)
	}
	users := s.store.AppUsers(ctx)
	if err := users.SetHWID(ctx, appID, userID, &hwid, s.clock()); err != nil {
		return nil, err
	}
	u, err := users.Find(ctx, appID, userID)
	if err != nil {
		return nil, err
	}
	s.adminRecord(ctx, appID, userID, ActivityHWIDSet, EventHWIDSet, map[string]string{
		"username": u.Username,
		"hwid":     hwid,
	})
	return u, nil
}
