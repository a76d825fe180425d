package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phantom-auth/authority/internal/vault"
)

func newTestService(t *testing.T) (*Service, *MemoryOperators, *vault.Vault) {
	t.Helper()
	store := NewMemoryOperators()
	hasher := vault.New(4)
	iss, err := NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	svc, err := NewService(store, hasher, iss)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, hasher
}

func TestSeedAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, store, hasher := newTestService(t)

	n, err := Seed(ctx, store, hasher, []Identity{
		{Email: "Owner@Example.com", Password: "hunter22", Role: RoleOwner},
		{Email: "viewer@example.com", Password: "viewpass", Role: RoleUser, Disabled: true},
	})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 seeded operators, got %d", n)
	}

	tok, err := svc.Login(ctx, "owner@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok.TokenType != "Bearer" || tok.AccessToken == "" {
		t.Fatalf("unexpected token: %+v", tok)
	}
	p, err := svc.Authenticate(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Operator.Email != "owner@example.com" || !p.HasPermission(PermDeleteApplications) {
		t.Fatalf("unexpected principal: %+v", p)
	}

	if _, err := svc.Login(ctx, "owner@example.com", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong password, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown email, got %v", err)
	}
	if _, err := svc.Login(ctx, "viewer@example.com", "viewpass"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for disabled operator, got %v", err)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, store, hasher := newTestService(t)
	ident := []Identity{{Email: "admin@example.com", Password: "adminpass", Role: RoleAdmin}}

	if _, err := Seed(ctx, store, hasher, ident); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	first, err := store.FindByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	n, err := Seed(ctx, store, hasher, ident)
	if err != nil {
		t.Fatalf("Seed again: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no changes on reseed, got %d", n)
	}

	ident[0].Role = RoleOwner
	if n, err = Seed(ctx, store, hasher, ident); err != nil || n != 1 {
		t.Fatalf("expected one change after role update, got %d, %v", n, err)
	}
	second, err := store.FindByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if second.ID != first.ID || second.Role != RoleOwner {
		t.Fatalf("expected same id with promoted role, got %+v", second)
	}
	if second.PasswordHash != first.PasswordHash {
		t.Fatalf("password hash should be kept when the password still verifies")
	}
}

func TestSeedRejectsInvalidIdentity(t *testing.T) {
	ctx := context.Background()
	_, store, hasher := newTestService(t)
	cases := []Identity{
		{Email: "not-an-email", Password: "x", Role: RoleOwner},
		{Email: "Root <root@example.com>", Password: "x", Role: RoleOwner},
		{Email: "", Password: "x", Role: RoleOwner},
		{Email: "a@example.com", Password: "", Role: RoleOwner},
		{Email: "a@example.com", Password: "x", Role: "root"},
	}
	for _, tc := range cases {
		if _, err := Seed(ctx, store, hasher, []Identity{tc}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", tc, err)
		}
	}
}

func TestAuthenticateUsesStoredRole(t *testing.T) {
	ctx := context.Background()
	svc, store, hasher := newTestService(t)
	if _, err := Seed(ctx, store, hasher, []Identity{{Email: "a@example.com", Password: "pw", Role: RoleOwner}}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	tok, err := svc.Login(ctx, "a@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := Seed(ctx, store, hasher, []Identity{{Email: "a@example.com", Password: "pw", Role: RoleUser}}); err != nil {
		t.Fatalf("Seed demote: %v", err)
	}
	p, err := svc.Authenticate(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.HasPermission(PermViewAllData) {
		t.Fatalf("demoted operator kept view_all_data")
	}

	if _, err := Seed(ctx, store, hasher, []Identity{{Email: "a@example.com", Password: "pw", Role: RoleUser, Disabled: true}}); err != nil {
		t.Fatalf("Seed disable: %v", err)
	}
	if _, err := svc.Authenticate(ctx, tok.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for disabled operator, got %v", err)
	}
}

func TestPrincipalApplicationAccess(t *testing.T) {
	owner := NewPrincipal(Operator{ID: "o", Role: RoleOwner})
	admin := NewPrincipal(Operator{ID: "a", Role: RoleAdmin})
	user := NewPrincipal(Operator{ID: "u", Role: RoleUser})

	if !user.CanAccessApplication("u") || user.CanAccessApplication("o") {
		t.Fatalf("user access must be limited to own applications")
	}
	if !admin.CanAccessApplication("u") || admin.CanDeleteApplication("u") {
		t.Fatalf("admin may view but not delete foreign applications")
	}
	if !owner.CanDeleteApplication("u") {
		t.Fatalf("owner may delete any application")
	}
	if user.HasPermission(PermAccessAdminPanel) {
		t.Fatalf("user should not reach the admin panel")
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatalf("expected no principal")
	}
	ctx := ContextWithPrincipal(context.Background(), NewPrincipal(Operator{ID: "op-7", Role: RoleAdmin}))
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.Operator.ID != "op-7" || !p.HasPermission(PermManageUsers) {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestOperatorIDFromContext(t *testing.T) {
	if id := OperatorID(context.Background()); id != "" {
		t.Fatalf("expected empty operator id, got %q", id)
	}
	ctx := ContextWithPrincipal(context.Background(), NewPrincipal(Operator{ID: "op-9", Role: RoleUser}))
	if id := OperatorID(ctx); id != "op-9" {
		t.Fatalf("unexpected operator id %q", id)
	}
}
