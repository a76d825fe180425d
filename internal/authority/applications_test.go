package authority

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCreateApplicationIssuesKey(t *testing.T) {
	f := newFixture(t)
	if !strings.HasPrefix(f.app.APIKey, APIKeyPrefix+"_") {
		t.Fatalf("unexpected api key %q", f.app.APIKey)
	}
	if !f.app.IsActive {
		t.Fatal("new application should be active")
	}
	got, err := f.svc.ApplicationByAPIKey(context.Background(), f.app.APIKey)
	if err != nil || got.ID != f.app.ID {
		t.Fatalf("lookup by key: %v", err)
	}
	if _, err := f.svc.CreateApplication(context.Background(), NewApplication{OwnerID: "op", Name: " "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDisabledApplicationRejectsKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	off := false
	if _, err := f.svc.UpdateApplication(ctx, f.app.ID, ApplicationUpdate{IsActive: &off}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := f.svc.ApplicationByAPIKey(ctx, f.app.APIKey); !errors.Is(err, ErrApplicationDisabled) {
		t.Fatalf("expected ErrApplicationDisabled, got %v", err)
	}
	if _, err := f.svc.ApplicationByAPIKey(ctx, "phantom_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRotateAPIKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.app.APIKey
	rotated, err := f.svc.RotateAPIKey(ctx, f.app.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.APIKey == old {
		t.Fatal("expected new key")
	}
	if _, err := f.svc.ApplicationByAPIKey(ctx, old); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old key must stop working, got %v", err)
	}
}

func TestListAndDeleteApplications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second, err := f.svc.CreateApplication(ctx, NewApplication{OwnerID: "op-2", Name: "B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mine, _ := f.svc.ListApplications(ctx, "op-1")
	if len(mine) != 1 || mine[0].ID != f.app.ID {
		t.Fatalf("owner filter failed: %#v", mine)
	}
	all, _ := f.svc.ListApplications(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 applications, got %d", len(all))
	}

	f.createUser(t, NewAppUser{Username: "alice", Password: "pw"})
	if err := f.svc.DeleteApplication(ctx, f.app.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	users, _ := f.svc.ListUsers(ctx, f.app.ID)
	if len(users) != 0 {
		t.Fatalf("users must be removed with their application")
	}
	if _, err := f.svc.GetApplication(ctx, second.ID); err != nil {
		t.Fatalf("other tenant must survive: %v", err)
	}
}
