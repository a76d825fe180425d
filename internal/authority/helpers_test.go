package authority

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/phantom-auth/authority/internal/vault"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type countingHasher struct {
	inner    *vault.Vault
	verifies atomic.Int64
}

func newCountingHasher() *countingHasher {
	return &countingHasher{inner: vault.New(bcrypt.MinCost)}
}

func (h *countingHasher) Hash(secret string) (string, error) { return h.inner.Hash(secret) }

func (h *countingHasher) Verify(secret, hash string) bool {
	h.verifies.Add(1)
	return h.inner.Verify(secret, hash)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, evt Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	hasher   *countingHasher
	notifier *recordingNotifier
	app      *Application
	now      *time.Time
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	now := testNow
	f := &fixture{
		store:    NewMemoryStore(),
		hasher:   newCountingHasher(),
		notifier: &recordingNotifier{},
		now:      &now,
	}
	base := []ServiceOption{
		WithHasher(f.hasher),
		WithNotifier(f.notifier),
		WithClock(func() time.Time { return *f.now }),
	}
	svc, err := NewService(f.store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	app, err := svc.CreateApplication(context.Background(), NewApplication{OwnerID: "op-1", Name: "A1"})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	f.app = app
	return f
}

func (f *fixture) advance(d time.Duration) { *f.now = f.now.Add(d) }

func (f *fixture) createUser(t *testing.T, in NewAppUser) *AppUser {
	t.Helper()
	u, err := f.svc.CreateUser(context.Background(), f.app.ID, in)
	if err != nil {
		t.Fatalf("create user %q: %v", in.Username, err)
	}
	return u
}

func (f *fixture) login(username, password, hwid string) (LoginResult, error) {
	return f.svc.Authenticate(context.Background(), LoginRequest{
		ApplicationID: f.app.ID,
		Username:      username,
		Password:      password,
		HWID:          hwid,
		IP:            "203.0.113.7",
	})
}

func (f *fixture) activity(t *testing.T) []*ActivityLog {
	t.Helper()
	logs, err := f.svc.ListActivity(context.Background(), f.app.ID, 0)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	return logs
}

func (f *fixture) loginEvents(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, a := range f.activity(t) {
		if len(a.Event) > 6 && a.Event[:6] == "login." {
			out = append(out, a.Event)
		}
	}
	return out
}

func strPtr(s string) *string { return &s }
