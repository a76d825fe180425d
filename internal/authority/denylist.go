package authority

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phantom-auth/authority/internal/ids"
)

// NewBlacklistEntry carries the fields accepted when adding a deny-list rule.
type NewBlacklistEntry struct {
	Type   BlacklistType
	Value  string
	Reason string
}

// IsBlocked reports whether an active entry matches (appID, typ, value).
// Empty values never match.
func (s *Service) IsBlocked(ctx context.Context, appID string, typ BlacklistType, value string) (bool, error) {
	_, ok, err := s.matchBlacklist(ctx, appID, typ, value)
	return ok, err
}

func (s *Service) matchBlacklist(ctx context.Context, appID string, typ BlacklistType, value string) (*BlacklistEntry, bool, error) {
	value = normalizeBlacklistValue(typ, value)
	if value == "" {
		return nil, false, nil
	}
	e, err := s.store.Blacklist(ctx).Match(ctx, appID, typ, value)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, internal(err)
	}
	return e, true, nil
}

// probe is one identifier checked against the deny-list during login.
type probe struct {
	typ   BlacklistType
	value string
}

// loginProbes lists identifiers in evaluation order: device, network, identity.
func loginProbes(u *AppUser, req LoginRequest) []probe {
	probes := []probe{
		{BlacklistHWID, req.HWID},
		{BlacklistIP, req.IP},
		{BlacklistUsername, u.Username},
	}
	if u.Email != nil {
		probes = append(probes, probe{BlacklistEmail, *u.Email})
	}
	return probes
}

// firstBlocked short-circuits on the first matching probe.
func (s *Service) firstBlocked(ctx context.Context, appID string, probes []probe) (*BlacklistEntry, error) {
	for _, p := range probes {
		e, ok, err := s.matchBlacklist(ctx, appID, p.typ, p.value)
		if err != nil {
			return nil, err
		}
		if ok {
			return e, nil
		}
	}
	return nil, nil
}

// AddBlacklistEntry adds a deny-list rule. Adding a value that is already
// actively blocked returns the existing entry.
func (s *Service) AddBlacklistEntry(ctx context.Context, appID string, in NewBlacklistEntry) (*BlacklistEntry, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, fmt.Errorf("%w: application id is required", ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown blacklist type %q", ErrInvalidInput, in.Type)
	}
	value := normalizeBlacklistValue(in.Type, in.Value)
	if value == "" {
		return nil, fmt.Errorf("%w: value is required", ErrInvalidInput)
	}
	if existing, ok, err := s.matchBlacklist(ctx, appID, in.Type, value); err != nil {
		return nil, err
	} else if ok {
		return existing, nil
	}

	e := &BlacklistEntry{
		ID:            ids.New(),
		ApplicationID: appID,
		Type:          in.Type,
		Value:         value,
		Reason:        strings.TrimSpace(in.Reason),
		IsActive:      true,
		CreatedAt:     s.clock(),
	}
	if err := s.store.Blacklist(ctx).Create(ctx, e); err != nil {
		return nil, err
	}
	s.adminRecord(ctx, appID, "", ActivityBlacklistAdded, EventBlacklistAdded, map[string]string{
		"entry_id": e.ID,
		"type":     string(e.Type),
		"value":    e.Value,
	})
	return e, nil
}

// RemoveBlacklistEntry deactivates an entry. It reports false when the entry
// was already inactive.
func (s *Service) RemoveBlacklistEntry(ctx context.Context, appID, entryID string) (bool, error) {
	bl := s.store.Blacklist(ctx)
	e, err := bl.Find(ctx, appID, entryID)
	if err != nil {
		return false, err
	}
	ok, err := bl.Deactivate(ctx, appID, entryID)
	if err != nil {
		return false, err
	}
	if ok {
		s.adminRecord(ctx, appID, "", ActivityBlacklistRemoved, EventBlacklistRemoved, map[string]string{
			"entry_id": e.ID,
			"type":     string(e.Type),
			"value":    e.Value,
		})
	}
	return ok, nil
}

// DeleteBlacklistEntry removes an entry physically.
func (s *Service) DeleteBlacklistEntry(ctx context.Context, appID, entryID string) error {
	bl := s.store.Blacklist(ctx)
	e, err := bl.Find(ctx, appID, entryID)
	if err != nil {
		return err
	}
	if err := bl.Delete(ctx, appID, entryID); err != nil {
		return err
	}
	s.adminRecord(ctx, appID, "", ActivityBlacklistDeleted, EventBlacklistRemoved, map[string]string{
		"entry_id": e.ID,
		"type":     string(e.Type),
		"value":    e.Value,
	})
	return nil
}

// ListBlacklist returns every entry of an application, active or not.
func (s *Service) ListBlacklist(ctx context.Context, appID string) ([]*BlacklistEntry, error) {
	return s.store.Blacklist(ctx).ListByApplication(ctx, appID)
}

// Emails are stored lowercase; every other value is compared verbatim.
func normalizeBlacklistValue(typ BlacklistType, value string) string {
	value = strings.TrimSpace(value)
	if typ == BlacklistEmail {
		value = strings.ToLower(value)
	}
	return value
}
