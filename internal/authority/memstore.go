package authority

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process concurrency safety. Every
// mutation runs in one critical section, so conditional updates are atomic.
// Values are copied on the way in and out.
type MemoryStore struct {
	mu        sync.RWMutex
	apps      map[string]*Application
	users     map[string]*AppUser
	blacklist map[string]*BlacklistEntry
	sessions  map[string]*Session // id -> session
	tokens    map[string]string   // token -> session id
	activity  []*ActivityLog
	webhooks  map[string]*Webhook
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:      make(map[string]*Application),
		users:     make(map[string]*AppUser),
		blacklist: make(map[string]*BlacklistEntry),
		sessions:  make(map[string]*Session),
		tokens:    make(map[string]string),
		webhooks:  make(map[string]*Webhook),
	}
}

func (m *MemoryStore) Applications(context.Context) ApplicationStore { return memApps{m} }
func (m *MemoryStore) AppUsers(context.Context) AppUserStore         { return memUsers{m} }
func (m *MemoryStore) Blacklist(context.Context) BlacklistStore      { return memBlacklist{m} }
func (m *MemoryStore) Sessions(context.Context) SessionStore         { return memSessions{m} }
func (m *MemoryStore) Activity(context.Context) ActivityStore        { return memActivity{m} }
func (m *MemoryStore) Webhooks(context.Context) WebhookStore         { return memWebhooks{m} }

// Ping reports the store as always ready.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// --- applications ---

type memApps struct{ m *MemoryStore }

func (s memApps) Create(_ context.Context, app *Application) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.apps[app.ID]; ok {
		return ErrConflict
	}
	for _, a := range s.m.apps {
		if a.APIKey == app.APIKey {
			return ErrConflict
		}
	}
	cp := *app
	s.m.apps[app.ID] = &cp
	return nil
}

func (s memApps) Find(_ context.Context, id string) (*Application, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	a, ok := s.m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s memApps) FindByAPIKey(_ context.Context, apiKey string) (*Application, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, a := range s.m.apps {
		if a.APIKey == apiKey {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s memApps) List(_ context.Context) ([]*Application, error) {
	return s.filter(func(*Application) bool { return true }), nil
}

func (s memApps) ListByOwner(_ context.Context, ownerID string) ([]*Application, error) {
	return s.filter(func(a *Application) bool { return a.OwnerID == ownerID }), nil
}

func (s memApps) filter(keep func(*Application) bool) []*Application {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]*Application, 0)
	for _, a := range s.m.apps {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Application) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (s memApps) Update(_ context.Context, app *Application) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cur, ok := s.m.apps[app.ID]
	if !ok {
		return ErrNotFound
	}
	for _, a := range s.m.apps {
		if a.ID != app.ID && a.APIKey == app.APIKey {
			return ErrConflict
		}
	}
	cur.Name = app.Name
	cur.Description = app.Description
	cur.APIKey = app.APIKey
	cur.IsActive = app.IsActive
	cur.UpdatedAt = app.UpdatedAt
	return nil
}

func (s memApps) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.apps[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.apps, id)
	for k, u := range s.m.users {
		if u.ApplicationID == id {
			delete(s.m.users, k)
		}
	}
	for k, e := range s.m.blacklist {
		if e.ApplicationID == id {
			delete(s.m.blacklist, k)
		}
	}
	for k, sess := range s.m.sessions {
		if sess.ApplicationID == id {
			delete(s.m.tokens, sess.Token)
			delete(s.m.sessions, k)
		}
	}
	for k, w := range s.m.webhooks {
		if w.ApplicationID == id {
			delete(s.m.webhooks, k)
		}
	}
	s.m.activity = slices.DeleteFunc(s.m.activity, func(a *ActivityLog) bool { return a.ApplicationID == id })
	return nil
}

// --- app users ---

type memUsers struct{ m *MemoryStore }

func (s memUsers) Create(_ context.Context, u *AppUser) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.apps[u.ApplicationID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.m.users[u.ID]; ok {
		return ErrConflict
	}
	if s.m.identityTaken(u) {
		return ErrConflict
	}
	s.m.users[u.ID] = u.clone()
	return nil
}

// identityTaken reports whether another account of the same application
// already uses u's username or email. Caller holds mu.
func (m *MemoryStore) identityTaken(u *AppUser) bool {
	for _, other := range m.users {
		if other.ID == u.ID || other.ApplicationID != u.ApplicationID {
			continue
		}
		if other.Username == u.Username {
			return true
		}
		if u.Email != nil && other.Email != nil && *other.Email == *u.Email {
			return true
		}
	}
	return false
}

func (m *MemoryStore) user(appID, id string) (*AppUser, bool) {
	u, ok := m.users[id]
	if !ok || u.ApplicationID != appID {
		return nil, false
	}
	return u, true
}

func (s memUsers) Find(_ context.Context, appID, id string) (*AppUser, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	u, ok := s.m.user(appID, id)
	if !ok {
		return nil, ErrNotFound
	}
	return u.clone(), nil
}

func (s memUsers) FindByUsername(_ context.Context, appID, username string) (*AppUser, error) {
	return s.findBy(appID, func(u *AppUser) bool { return u.Username == username })
}

func (s memUsers) FindByEmail(_ context.Context, appID, email string) (*AppUser, error) {
	return s.findBy(appID, func(u *AppUser) bool { return u.Email != nil && *u.Email == email })
}

func (s memUsers) findBy(appID string, match func(*AppUser) bool) (*AppUser, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, u := range s.m.users {
		if u.ApplicationID == appID && match(u) {
			return u.clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s memUsers) ListByApplication(_ context.Context, appID string) ([]*AppUser, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]*AppUser, 0)
	for _, u := range s.m.users {
		if u.ApplicationID == appID {
			out = append(out, u.clone())
		}
	}
	slices.SortFunc(out, func(a, b *AppUser) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s memUsers) Update(_ context.Context, u *AppUser) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cur, ok := s.m.user(u.ApplicationID, u.ID)
	if !ok {
		return ErrNotFound
	}
	if s.m.identityTaken(u) {
		return ErrConflict
	}
	cur.Username = u.Username
	cur.Email = cloneString(u.Email)
	cur.PasswordHash = u.PasswordHash
	cur.ExpiresAt = cloneTime(u.ExpiresAt)
	cur.UpdatedAt = u.UpdatedAt
	return nil
}

func (s memUsers) Delete(_ context.Context, appID, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.user(appID, id); !ok {
		return ErrNotFound
	}
	delete(s.m.users, id)
	for k, sess := range s.m.sessions {
		if sess.AppUserID == id {
			delete(s.m.tokens, sess.Token)
			delete(s.m.sessions, k)
		}
	}
	for _, a := range s.m.activity {
		if a.AppUserID != nil && *a.AppUserID == id {
			a.AppUserID = nil
		}
	}
	return nil
}

func (s memUsers) SetPaused(_ context.Context, appID, id string, paused bool, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.user(appID, id)
	if !ok {
		return ErrNotFound
	}
	u.IsPaused = paused
	u.UpdatedAt = at
	return nil
}

func (s memUsers) BindHWID(_ context.Context, appID, id, hwid string, at time.Time) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.user(appID, id)
	if !ok {
		return false, ErrNotFound
	}
	if u.HWID != nil {
		return false, nil
	}
	u.HWID = &hwid
	u.UpdatedAt = at
	return true, nil
}

func (s memUsers) SetHWID(_ context.Context, appID, id string, hwid *string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.user(appID, id)
	if !ok {
		return ErrNotFound
	}
	u.HWID = cloneString(hwid)
	u.UpdatedAt = at
	return nil
}

func (s memUsers) TouchLogin(_ context.Context, appID, id string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.user(appID, id)
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

// --- blacklist ---

type memBlacklist struct{ m *MemoryStore }

func (s memBlacklist) Create(_ context.Context, e *BlacklistEntry) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.apps[e.ApplicationID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.m.blacklist[e.ID]; ok {
		return ErrConflict
	}
	cp := *e
	s.m.blacklist[e.ID] = &cp
	return nil
}

func (s memBlacklist) Find(_ context.Context, appID, id string) (*BlacklistEntry, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	e, ok := s.m.blacklist[id]
	if !ok || e.ApplicationID != appID {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s memBlacklist) Match(_ context.Context, appID string, typ BlacklistType, value string) (*BlacklistEntry, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var found *BlacklistEntry
	for _, e := range s.m.blacklist {
		if e.IsActive && e.ApplicationID == appID && e.Type == typ && e.Value == value {
			if found == nil || e.ID < found.ID {
				found = e
			}
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (s memBlacklist) ListByApplication(_ context.Context, appID string) ([]*BlacklistEntry, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]*BlacklistEntry, 0)
	for _, e := range s.m.blacklist {
		if e.ApplicationID == appID {
			cp := *e
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *BlacklistEntry) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s memBlacklist) Deactivate(_ context.Context, appID, id string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	e, ok := s.m.blacklist[id]
	if !ok || e.ApplicationID != appID {
		return false, ErrNotFound
	}
	if !e.IsActive {
		return false, nil
	}
	e.IsActive = false
	return true, nil
}

func (s memBlacklist) Delete(_ context.Context, appID, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	e, ok := s.m.blacklist[id]
	if !ok || e.ApplicationID != appID {
		return ErrNotFound
	}
	delete(s.m.blacklist, id)
	return nil
}

// --- sessions ---

type memSessions struct{ m *MemoryStore }

func (s memSessions) Create(_ context.Context, sess *Session, replaceActive bool) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.user(sess.ApplicationID, sess.AppUserID); !ok {
		return ErrNotFound
	}
	if _, ok := s.m.tokens[sess.Token]; ok {
		return ErrConflict
	}
	if _, ok := s.m.sessions[sess.ID]; ok {
		return ErrConflict
	}
	if replaceActive {
		for _, other := range s.m.sessions {
			if other.AppUserID == sess.AppUserID && other.ApplicationID == sess.ApplicationID {
				other.IsActive = false
			}
		}
	}
	cp := *sess
	s.m.sessions[sess.ID] = &cp
	s.m.tokens[sess.Token] = sess.ID
	return nil
}

func (m *MemoryStore) sessionByToken(token string) (*Session, bool) {
	id, ok := m.tokens[token]
	if !ok {
		return nil, false
	}
	sess, ok := m.sessions[id]
	return sess, ok
}

func (s memSessions) FindByToken(_ context.Context, token string) (*Session, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	sess, ok := s.m.sessionByToken(token)
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s memSessions) Touch(_ context.Context, token string, at time.Time) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessionByToken(token)
	if !ok || !sess.IsActive {
		return false, nil
	}
	sess.LastActivity = at
	return true, nil
}

func (s memSessions) Deactivate(_ context.Context, token string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessionByToken(token)
	if !ok || !sess.IsActive {
		return false, nil
	}
	sess.IsActive = false
	return true, nil
}

func (s memSessions) DeactivateByUser(_ context.Context, appID, userID string) (int, error) {
	return s.deactivateWhere(func(sess *Session) bool {
		return sess.ApplicationID == appID && sess.AppUserID == userID
	}), nil
}

func (s memSessions) DeactivateIdle(_ context.Context, before time.Time) (int, error) {
	return s.deactivateWhere(func(sess *Session) bool {
		return sess.LastActivity.Before(before)
	}), nil
}

func (s memSessions) deactivateWhere(match func(*Session) bool) int {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	n := 0
	for _, sess := range s.m.sessions {
		if sess.IsActive && match(sess) {
			sess.IsActive = false
			n++
		}
	}
	return n
}

func (s memSessions) ListActive(_ context.Context, appID string) ([]*Session, error) {
	return s.list(func(sess *Session) bool {
		return sess.IsActive && sess.ApplicationID == appID
	}), nil
}

func (s memSessions) ListByUser(_ context.Context, appID, userID string) ([]*Session, error) {
	return s.list(func(sess *Session) bool {
		return sess.ApplicationID == appID && sess.AppUserID == userID
	}), nil
}

func (s memSessions) list(keep func(*Session) bool) []*Session {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]*Session, 0)
	for _, sess := range s.m.sessions {
		if keep(sess) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Session) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// --- activity ---

type memActivity struct{ m *MemoryStore }

func (s memActivity) Append(_ context.Context, entry *ActivityLog) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.apps[entry.ApplicationID]; !ok {
		return ErrNotFound
	}
	cp := *entry
	cp.AppUserID = cloneString(entry.AppUserID)
	if entry.Metadata != nil {
		cp.Metadata = make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			cp.Metadata[k] = v
		}
	}
	s.m.activity = append(s.m.activity, &cp)
	return nil
}

func (s memActivity) List(_ context.Context, appID string, limit int) ([]*ActivityLog, error) {
	return s.newest(limit, func(a *ActivityLog) bool { return a.ApplicationID == appID }), nil
}

func (s memActivity) ListByUser(_ context.Context, appID, userID string, limit int) ([]*ActivityLog, error) {
	return s.newest(limit, func(a *ActivityLog) bool {
		return a.ApplicationID == appID && a.AppUserID != nil && *a.AppUserID == userID
	}), nil
}

func (s memActivity) newest(limit int, keep func(*ActivityLog) bool) []*ActivityLog {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]*ActivityLog, 0)
	for i := len(s.m.activity) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		a := s.m.activity[i]
		if !keep(a) {
			continue
		}
		cp := *a
		cp.AppUserID = cloneString(a.AppUserID)
		out = append(out, &cp)
	}
	return out
}

// --- webhooks ---

type memWebhooks struct{ m *MemoryStore }

func cloneWebhook(w *Webhook) *Webhook {
	cp := *w
	cp.Events = slices.Clone(w.Events)
	return &cp
}

func (s memWebhooks) Create(_ context.Context, w *Webhook) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.apps[w.ApplicationID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.m.webhooks[w.ID]; ok {
		return ErrConflict
	}
	s.m.webhooks[w.ID] = cloneWebhook(w)
	return nil
}

func (s memWebhooks) Find(_ context.Context, appID, id string) (*Webhook, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	w, ok := s.m.webhooks[id]
	if !ok || w.ApplicationID != appID {
		return nil, ErrNotFound
	}
	return cloneWebhook(w), nil
}

func (s memWebhooks) ListByApplication(_ context.Context, appID string) ([]*Webhook, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]*Webhook, 0)
	for _, w := range s.m.webhooks {
		if w.ApplicationID == appID {
			out = append(out, cloneWebhook(w))
		}
	}
	slices.SortFunc(out, func(a, b *Webhook) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s memWebhooks) Update(_ context.Context, w *Webhook) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cur, ok := s.m.webhooks[w.ID]
	if !ok || cur.ApplicationID != w.ApplicationID {
		return ErrNotFound
	}
	cur.URL = w.URL
	cur.Secret = w.Secret
	cur.Events = slices.Clone(w.Events)
	cur.IsActive = w.IsActive
	cur.UpdatedAt = w.UpdatedAt
	return nil
}

func (s memWebhooks) Delete(_ context.Context, appID, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	w, ok := s.m.webhooks[id]
	if !ok || w.ApplicationID != appID {
		return ErrNotFound
	}
	delete(s.m.webhooks, id)
	return nil
}
