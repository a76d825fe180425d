package authority

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestResolveBinding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unbound := f.createUser(t, NewAppUser{Username: "free", Password: "pw"})
	bound := f.createUser(t, NewAppUser{Username: "taken", Password: "pw", HWID: "HW-1"})

	cases := []struct {
		name      string
		user      *AppUser
		presented string
		want      BindingResult
	}{
		{"bound match", bound, "HW-1", BindingBound},
		{"bound mismatch", bound, "HW-2", BindingMismatch},
		{"bound empty", bound, "", BindingMismatch},
		{"unbound empty", unbound, "  ", BindingBound},
	}
	for _, tc := range cases {
		got, err := f.svc.ResolveBinding(ctx, tc.user, tc.presented)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
	stored, _ := f.svc.GetUser(ctx, f.app.ID, unbound.ID)
	if stored.HWID != nil {
		t.Fatalf("empty fingerprint must not bind, got %q", *stored.HWID)
	}

	got, err := f.svc.ResolveBinding(ctx, unbound, "HW-7")
	if err != nil || got != BindingFirstBind {
		t.Fatalf("expected first bind, got %s %v", got, err)
	}
	if unbound.HWID == nil || *unbound.HWID != "HW-7" {
		t.Fatalf("expected in-place update, got %v", unbound.HWID)
	}
}

func TestResolveBindingStaleReadLoses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, NewAppUser{Username: "alice", Password: "pw"})
	stale := *u

	if res, _ := f.svc.ResolveBinding(ctx, u, "HW-A"); res != BindingFirstBind {
		t.Fatalf("expected first bind, got %s", res)
	}
	if res, _ := f.svc.ResolveBinding(ctx, &stale, "HW-B"); res != BindingMismatch {
		t.Fatalf("stale unbound copy must observe mismatch, got %s", res)
	}
	stale2 := stale
	stale2.HWID = nil
	if res, _ := f.svc.ResolveBinding(ctx, &stale2, "HW-A"); res != BindingBound {
		t.Fatalf("stale copy with winning value must observe bound, got %s", res)
	}
}

func TestConcurrentBindSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, NewAppUser{Username: "alice", Password: "pw"})

	const n = 16
	results := make([]BindingResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cp := *u
			results[i], _ = f.svc.ResolveBinding(ctx, &cp, string(rune('A'+i)))
		}(i)
	}
	wg.Wait()

	first := 0
	for _, r := range results {
		switch r {
		case BindingFirstBind:
			first++
		case BindingMismatch:
		default:
			t.Fatalf("unexpected result %s", r)
		}
	}
	if first != 1 {
		t.Fatalf("expected exactly one first bind, got %d", first)
	}
}

func TestResetAndForceSetBinding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, NewAppUser{Username: "alice", Password: "secret123"})

	if _, err := f.login("alice", "secret123", "HW-1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	reset, err := f.svc.ResetBinding(ctx, f.app.ID, u.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.HWID != nil {
		t.Fatalf("expected cleared hwid")
	}
	if _, err := f.login("alice", "secret123", "HW-2"); err != nil {
		t.Fatalf("login after reset should rebind: %v", err)
	}

	forced, err := f.svc.ForceSetBinding(ctx, f.app.ID, u.ID, "HW-3")
	if err != nil {
		t.Fatalf("force set: %v", err)
	}
	if forced.HWID == nil || *forced.HWID != "HW-3" {
		t.Fatalf("expected HW-3, got %v", forced.HWID)
	}
	if _, err := f.login("alice", "secret123", "HW-2"); !errors.Is(err, ErrHWIDMismatch) {
		t.Fatalf("expected mismatch after force set, got %v", err)
	}

	if _, err := f.svc.ForceSetBinding(ctx, f.app.ID, u.ID, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.ResetBinding(ctx, f.app.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	logs := f.activity(t)
	var sawReset, sawSet bool
	for _, l := range logs {
		switch l.Event {
		case ActivityHWIDReset:
			sawReset = l.Metadata["previous_hwid"] == "HW-1"
		case ActivityHWIDSet:
			sawSet = l.Metadata["hwid"] == "HW-3"
		}
	}
	if !sawReset || !sawSet {
		t.Fatalf("expected reset and set activity entries")
	}
}
