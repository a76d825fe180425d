package authority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthenticateScenario(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, NewAppUser{Username: "alice", Password: "secret123"})

	res, err := f.login("alice", "secret123", "HW-1")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if res.Session == nil || res.Session.Token == "" || !res.Session.IsActive {
		t.Fatalf("expected active session with token, got %#v", res.Session)
	}
	if res.Binding != BindingFirstBind {
		t.Fatalf("expected first bind, got %s", res.Binding)
	}
	u, _ := f.svc.GetUserByUsername(context.Background(), f.app.ID, "alice")
	if u.HWID == nil || *u.HWID != "HW-1" {
		t.Fatalf("expected hwid HW-1, got %v", u.HWID)
	}
	if u.LastLoginAt == nil || !u.LastLoginAt.Equal(testNow) {
		t.Fatalf("expected last login bumped, got %v", u.LastLoginAt)
	}

	if _, err := f.login("alice", "secret123", "HW-2"); !errors.Is(err, ErrHWIDMismatch) {
		t.Fatalf("expected ErrHWIDMismatch, got %v", err)
	}
	if _, err := f.login("alice", "wrongpass", "HW-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	res, err = f.login("alice", "secret123", "HW-1")
	if err != nil {
		t.Fatalf("bound login: %v", err)
	}
	if res.Binding != BindingBound {
		t.Fatalf("expected bound, got %s", res.Binding)
	}

	want := []string{"login.success", "login.invalid_credentials", "login.hwid_mismatch", "login.success"}
	got := f.loginEvents(t)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("activity events = %v, want %v", got, want)
	}
}

func TestAuthenticateUnknownUserMatchesWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, NewAppUser{Username: "alice", Password: "secret123"})

	_, errUnknown := f.login("mallory", "secret123", "HW-1")
	_, errWrong := f.login("alice", "nope", "HW-1")
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected both invalid credentials, got %v / %v", errUnknown, errWrong)
	}
	logs := f.activity(t)
	if logs[1].AppUserID != nil {
		t.Fatalf("unknown user attempt should not reference an account")
	}
	if logs[1].Metadata["username"] != "mallory" {
		t.Fatalf("expected attempted username recorded, got %v", logs[1].Metadata)
	}
}

func TestAuthenticateDenyListedHWIDPrecedesVerify(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, NewAppUser{Username: "alice", Password: "secret123"})
	if _, err := f.svc.AddBlacklistEntry(context.Background(), f.app.ID, NewBlacklistEntry{Type: BlacklistHWID, Value: "HW-9"}); err != nil {
		t.Fatalf("add blacklist: %v", err)
	}

	before := f.hasher.verifies.Load()
	if _, err := f.login("alice", "secret123", "HW-9"); !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked, got %v", err)
	}
	if _, err := f.login("alice", "wrong", "HW-9"); !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("blocked identity must not learn password validity, got %v", err)
	}
	if n := f.hasher.verifies.Load() - before; n != 0 {
		t.Fatalf("expected no vault verification while blocked, got %d", n)
	}
	u, _ := f.svc.GetUserByUsername(context.Background(), f.app.ID, "alice")
	if u.HWID != nil {
		t.Fatalf("blocked login must not bind, got %q", *u.HWID)
	}
	logs := f.activity(t)
	if logs[0].Event != "login.account_blocked" || logs[0].Metadata["blacklist_type"] != "hwid" {
		t.Fatalf("unexpected activity %#v", logs[0])
	}
}

func TestAuthenticateDenyListProbesAllIdentifiers(t *testing.T) {
	cases := []struct {
		typ   BlacklistType
		value string
	}{
		{BlacklistIP, "203.0.113.7"},
		{BlacklistUsername, "alice"},
		{BlacklistEmail, "ALICE@example.com"},
	}
	for _, tc := range cases {
		t.Run(string(tc.typ), func(t *testing.T) {
			f := newFixture(t)
			f.createUser(t, NewAppUser{Username: "alice", Password: "secret123", Email: "alice@example.com"})
			if _, err := f.svc.AddBlacklistEntry(context.Background(), f.app.ID, NewBlacklistEntry{Type: tc.typ, Value: tc.value}); err != nil {
				t.Fatalf("add: %v", err)
			}
			if _, err := f.login("alice", "secret123", "HW-1"); !errors.Is(err, ErrAccountBlocked) {
				t.Fatalf("expected blocked by %s, got %v", tc.typ, err)
			}
		})
	}
}

func TestAuthenticateExpiredRegardlessOfCredentials(t *testing.T) {
	f := newFixture(t)
	exp := testNow.Add(-time.Minute)
	f.createUser(t, NewAppUser{Username: "alice", Password: "secret123", ExpiresAt: &exp})

	for _, pw := range []string{"secret123", "wrong"} {
		if _, err := f.login("alice", pw, "HW-1"); !errors.Is(err, ErrAccountExpired) {
			t.Fatalf("password %q: expected ErrAccountExpired, got %v", pw, err)
		}
	}
}

func TestAuthenticatePausedWithValidCredentialsAndHWID(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, NewAppUser{Username: "alice", Password: "secret123", HWID: "HW-1"})
	if _, err := f.svc.PauseUser(context.Background(), f.app.ID, u.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.login("alice", "secret123", "HW-1"); !errors.Is(err, ErrAccountPaused) {
		t.Fatalf("expected ErrAccountPaused, got %v", err)
	}
	if _, err := f.svc.UnpauseUser(context.Background(), f.app.ID, u.ID); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := f.login("alice", "secret123", "HW-1"); err != nil {
		t.Fatalf("expected login after unpause, got %v", err)
	}
}

func TestAuthenticateConcurrentFirstBind(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		f.createUser(t, NewAppUser{Username: "alice", Password: "secret123"})

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, 2)
		)
		for i, hwid := range []string{"HW-A", "HW-B"} {
			wg.Add(1)
			go func(i int, hwid string) {
				defer wg.Done()
				<-start
				_, errs[i] = f.login("alice", "secret123", hwid)
			}(i, hwid)
		}
		close(start)
		wg.Wait()

		succeeded, mismatched := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrHWIDMismatch):
				mismatched++
			default:
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		if succeeded != 1 || mismatched != 1 {
			t.Fatalf("round %d: expected one winner and one mismatch, got %d/%d", round, succeeded, mismatched)
		}
		sessions, _ := f.svc.ListActiveSessions(context.Background(), f.app.ID)
		if len(sessions) != 1 {
			t.Fatalf("round %d: expected 1 session, got %d", round, len(sessions))
		}
		u, _ := f.svc.GetUserByUsername(context.Background(), f.app.ID, "alice")
		if u.HWID == nil || *u.HWID != sessions[0].HWID {
			t.Fatalf("round %d: binding %v does not match winning session %q", round, u.HWID, sessions[0].HWID)
		}
	}
}

func TestAuthenticateCancelledLeavesNoSession(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, NewAppUser{Username: "alice", Password: "secret123"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Authenticate(ctx, LoginRequest{ApplicationID: f.app.ID, Username: "alice", Password: "secret123", HWID: "HW-1"})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	sessions, _ := f.svc.ListActiveSessions(context.Background(), f.app.ID)
	if len(sessions) != 0 {
		t.Fatalf("expected no session, got %d", len(sessions))
	}
	if got := f.loginEvents(t); len(got) != 1 || got[0] != "login.internal_error" {
		t.Fatalf("expected one internal error record, got %v", got)
	}
}

type failingUsers struct {
	AppUserStore
	err error
}

func (f failingUsers) FindByUsername(context.Context, string, string) (*AppUser, error) {
	return nil, f.err
}

type failingStore struct {
	*MemoryStore
	err error
}

func (s failingStore) AppUsers(ctx context.Context) AppUserStore {
	return failingUsers{AppUserStore: s.MemoryStore.AppUsers(ctx), err: s.err}
}

func TestAuthenticateStorageFailureIsInternal(t *testing.T) {
	mem := NewMemoryStore()
	cause := errors.New("connection reset by peer")
	svc, err := NewService(failingStore{MemoryStore: mem, err: cause}, WithHasher(newCountingHasher()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	app, err := svc.CreateApplication(context.Background(), NewApplication{OwnerID: "op", Name: "A1"})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}

	_, err = svc.Authenticate(context.Background(), LoginRequest{ApplicationID: app.ID, Username: "alice", Password: "x"})
	if err != ErrInternal {
		t.Fatalf("expected bare ErrInternal, got %v", err)
	}
	logs, _ := svc.ListActivity(context.Background(), app.ID, 10)
	if len(logs) != 1 || logs[0].Event != "login.internal_error" || logs[0].Success {
		t.Fatalf("expected internal error activity, got %#v", logs)
	}
}

func TestAuthenticateConcealedReasons(t *testing.T) {
	f := newFixture(t, WithConcealedReasons(true))
	u := f.createUser(t, NewAppUser{Username: "alice", Password: "secret123", HWID: "HW-1"})
	if _, err := f.svc.PauseUser(context.Background(), f.app.ID, u.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.login("alice", "secret123", "HW-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected concealed ErrInvalidCredentials, got %v", err)
	}
	if got := f.loginEvents(t); len(got) != 1 || got[0] != "login.account_paused" {
		t.Fatalf("activity must keep precise kind, got %v", got)
	}
}

func TestAuthenticateSingleSession(t *testing.T) {
	f := newFixture(t, WithSingleSession(true))
	f.createUser(t, NewAppUser{Username: "alice", Password: "secret123"})

	first, err := f.login("alice", "secret123", "HW-1")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.login("alice", "secret123", "HW-1")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if ok, _ := f.svc.Heartbeat(context.Background(), first.Session.Token); ok {
		t.Fatal("prior session should be inactive")
	}
	if ok, _ := f.svc.Heartbeat(context.Background(), second.Session.Token); !ok {
		t.Fatal("new session should be active")
	}
}

func TestAuthenticateEmitsWebhookEvents(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, NewAppUser{Username: "alice", Password: "secret123"})
	_, _ = f.login("alice", "secret123", "HW-1")
	_, _ = f.login("alice", "bad", "HW-1")

	got := fmt.Sprint(f.notifier.types())
	want := fmt.Sprint([]string{EventUserCreated, EventHWIDBound, EventLoginSuccess, EventLoginFailure})
	if got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
}

func TestAuthenticateUnknownApplicationIsLoggedNotRecorded(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixture(t, WithLogger(zap.New(core)))
	f.createUser(t, NewAppUser{Username: "alice", Password: "secret123"})
	eventsBefore := len(f.notifier.types())
	rowsBefore := len(f.activity(t))

	for _, appID := range []string{"no-such-app", ""} {
		_, err := f.svc.Authenticate(context.Background(), LoginRequest{
			ApplicationID: appID, Username: "alice", Password: "secret123", IP: "203.0.113.4",
		})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("app %q: expected ErrInvalidCredentials, got %v", appID, err)
		}
	}

	if n := logs.FilterMessage("login for unknown application").Len(); n != 2 {
		t.Fatalf("expected 2 unknown application warnings, got %d", n)
	}
	if n := logs.FilterMessage("activity record failed").Len(); n != 0 {
		t.Fatalf("no activity write should be attempted, got %d failures", n)
	}
	if got := f.notifier.types(); len(got) != eventsBefore {
		t.Fatalf("unexpected events: %v", got)
	}
	if got := f.activity(t); len(got) != rowsBefore {
		t.Fatalf("tenant activity should be untouched, got %d rows", len(got))
	}
}
