package sqlstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/phantom-auth/authority/internal/authority"
)

func openSQLiteStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	m, err := store.Migrator()
	if err != nil {
		t.Fatalf("Migrator: %v", err)
	}
	if _, err := m.Up(context.Background()); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return store
}

func TestSQLiteAuthorityRoundTrip(t *testing.T) {
	store := openSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	app := &authority.Application{ID: "app-1", OwnerID: "op-1", Name: "Loader", APIKey: "phantom_x", IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := store.Applications(ctx).Create(ctx, app); err != nil {
		t.Fatalf("create app: %v", err)
	}
	dup := *app
	dup.ID = "app-2"
	if err := store.Applications(ctx).Create(ctx, &dup); !errors.Is(err, authority.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate api key, got %v", err)
	}

	user := &authority.AppUser{ID: "u-1", ApplicationID: "app-1", Username: "alice", PasswordHash: "h", CreatedAt: now, UpdatedAt: now}
	if err := store.AppUsers(ctx).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	orphan := &authority.AppUser{ID: "u-2", ApplicationID: "missing", Username: "bob", PasswordHash: "h", CreatedAt: now, UpdatedAt: now}
	if err := store.AppUsers(ctx).Create(ctx, orphan); !errors.Is(err, authority.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown application, got %v", err)
	}

	won, err := store.AppUsers(ctx).BindHWID(ctx, "app-1", "u-1", "hw-A", now)
	if err != nil || !won {
		t.Fatalf("first bind: %v, %v", won, err)
	}
	won, err = store.AppUsers(ctx).BindHWID(ctx, "app-1", "u-1", "hw-B", now)
	if err != nil || won {
		t.Fatalf("second bind should lose: %v, %v", won, err)
	}
	got, err := store.AppUsers(ctx).FindByUsername(ctx, "app-1", "alice")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if got.HWID == nil || *got.HWID != "hw-A" {
		t.Fatalf("unexpected binding: %v", got.HWID)
	}

	for i, tok := range []string{"t1", "t2"} {
		sess := &authority.Session{
			ID: "s-" + tok, ApplicationID: "app-1", AppUserID: "u-1", Token: tok,
			IsActive: true, CreatedAt: now, LastActivity: now.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Sessions(ctx).Create(ctx, sess, i == 1); err != nil {
			t.Fatalf("create session %s: %v", tok, err)
		}
	}
	active, err := store.Sessions(ctx).ListActive(ctx, "app-1")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].Token != "t2" {
		t.Fatalf("single-session replace failed: %+v", active)
	}
	n, err := store.Sessions(ctx).DeactivateIdle(ctx, now.Add(2*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("reap: %d, %v", n, err)
	}

	uid := "u-1"
	for i := 0; i < 3; i++ {
		entry := &authority.ActivityLog{
			ID: "a-" + string(rune('1'+i)), ApplicationID: "app-1", AppUserID: &uid, Event: "login.success",
			Success: true, Metadata: map[string]string{"n": string(rune('1' + i))}, CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := store.Activity(ctx).Append(ctx, entry); err != nil {
			t.Fatalf("append activity: %v", err)
		}
	}
	logs, err := store.Activity(ctx).List(ctx, "app-1", 2)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(logs) != 2 || logs[0].ID != "a-3" || logs[0].Metadata["n"] != "3" {
		t.Fatalf("expected newest first, got %+v", logs)
	}

	if err := store.AppUsers(ctx).Delete(ctx, "app-1", "u-1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	logs, err = store.Activity(ctx).List(ctx, "app-1", 10)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(logs) != 3 || logs[0].AppUserID != nil {
		t.Fatalf("activity should outlive the account with a detached user id: %+v", logs)
	}
	if _, err := store.Sessions(ctx).FindByToken(ctx, "t2"); !errors.Is(err, authority.ErrNotFound) {
		t.Fatalf("sessions should cascade with the account, got %v", err)
	}
}
