package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/phantom-auth/authority/internal/ids"
	"github.com/phantom-auth/authority/internal/vault"
)

// Identity is a bootstrap operator declaration.
type Identity struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     Role   `yaml:"role"`
	Disabled bool   `yaml:"disabled"`
}

var identityValidator = validator.New()

func (id Identity) validate() error {
	if err := identityValidator.Var(id.Email, "required,email"); err != nil {
		return fmt.Errorf("%w: email %q", ErrInvalidInput, id.Email)
	}
	if id.Password == "" {
		return fmt.Errorf("%w: password for %s is empty", ErrInvalidInput, id.Email)
	}
	if !id.Role.Valid() {
		return fmt.Errorf("%w: role %q for %s", ErrInvalidInput, id.Role, id.Email)
	}
	return nil
}

// Seed upserts the declared identities. Existing operators keep their id and
// are rehashed only when the declared password no longer verifies. It returns
// the number of operators created or changed.
func Seed(ctx context.Context, store OperatorStore, hasher vault.Hasher, identities []Identity) (int, error) {
	changed := 0
	for _, ident := range identities {
		ident.Email = strings.TrimSpace(strings.ToLower(ident.Email))
		if err := ident.validate(); err != nil {
			return changed, err
		}
		now := time.Now().UTC()
		cur, err := store.FindByEmail(ctx, ident.Email)
		switch {
		case errors.Is(err, ErrNotFound):
			cur = nil
		case err != nil:
			return changed, fmt.Errorf("find operator %s: %w", ident.Email, err)
		}

		op := &Operator{
			ID:        ids.New(),
			Email:     ident.Email,
			Role:      ident.Role,
			IsActive:  !ident.Disabled,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if cur != nil {
			if cur.Role == ident.Role && cur.IsActive == op.IsActive && hasher.Verify(ident.Password, cur.PasswordHash) {
				continue
			}
			op.ID = cur.ID
			op.CreatedAt = cur.CreatedAt
			op.PasswordHash = cur.PasswordHash
		}
		if op.PasswordHash == "" || !hasher.Verify(ident.Password, op.PasswordHash) {
			hash, err := hasher.Hash(ident.Password)
			if err != nil {
				return changed, fmt.Errorf("hash password for %s: %w", ident.Email, err)
			}
			op.PasswordHash = hash
		}
		if err := store.Upsert(ctx, op); err != nil {
			return changed, fmt.Errorf("upsert operator %s: %w", ident.Email, err)
		}
		changed++
	}
	return changed, nil
}
