package authority

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

const (
	maxUsernameLength = 64
	maxHWIDLength     = 256
)

var fieldValidator = validator.New()

// NewAppUser carries the fields accepted when provisioning a license holder.
type NewAppUser struct {
	Username  string
	Password  string
	Email     string
	HWID      string
	ExpiresAt *time.Time
}

// AppUserUpdate is the closed set of mutable account fields. Nil means unchanged.
type AppUserUpdate struct {
	Username    *string
	Email       *string
	Password    *string
	ExpiresAt   *time.Time
	ClearEmail  bool
	ClearExpiry bool
}

// Empty reports whether the update changes nothing.
func (u AppUserUpdate) Empty() bool {
	return u.Username == nil && u.Email == nil && u.Password == nil &&
		u.ExpiresAt == nil && !u.ClearEmail && !u.ClearExpiry
}

func (u AppUserUpdate) validate() error {
	if u.ClearEmail && u.Email != nil {
		return fmt.Errorf("%w: email set and cleared", ErrInvalidInput)
	}
	if u.ClearExpiry && u.ExpiresAt != nil {
		return fmt.Errorf("%w: expiry set and cleared", ErrInvalidInput)
	}
	if u.Username != nil {
		if err := validateUsername(*u.Username); err != nil {
			return err
		}
	}
	if u.Email != nil {
		if err := validateEmail(*u.Email); err != nil {
			return err
		}
	}
	if u.Password != nil && *u.Password == "" {
		return fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	return nil
}

// CreateUser provisions a license holder. The secret is hashed before storage;
// an optional HWID pre-binds the account.
func (s *Service) CreateUser(ctx context.Context, appID string, in NewAppUser) (*AppUser, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, fmt.Errorf("%w: application id is required", ErrInvalidInput)
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.HWID = strings.TrimSpace(in.HWID)
	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if in.Email != "" {
		if err := validateEmail(in.Email); err != nil {
			return nil, err
		}
	}
	if len(in.HWID) > maxHWIDLength {
		return nil, fmt.Errorf("%w: hwid too long", ErrInvalidInput)
	}
	hash, err := s.hashSecret(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	u := &AppUser{
		ID:            ids.New(),
		ApplicationID: appID,
		Username:      in.Username,
		PasswordHash:  hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Email != "" {
		email := strings.ToLower(in.Email)
		u.Email = &email
	}
	if in.HWID != "" {
		hwid := in.HWID
		u.HWID = &hwid
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		u.ExpiresAt = &exp
	}
	if err := s.store.AppUsers(ctx).Create(ctx, u); err != nil {
		return nil, err
	}
	s.adminRecord(ctx, appID, u.ID, ActivityUserCreated, EventUserCreated, map[string]string{"username": u.Username})
	return u, nil
}

// GetUser returns one account.
func (s *Service) GetUser(ctx context.Context, appID, userID string) (*AppUser, error) {
	return s.store.AppUsers(ctx).Find(ctx, appID, userID)
}

// GetUserByUsername returns the account registered as username.
func (s *Service) GetUserByUsername(ctx context.Context, appID, username string) (*AppUser, error) {
	return s.store.AppUsers(ctx).FindByUsername(ctx, appID, strings.TrimSpace(username))
}

// GetUserByEmail returns the account registered with email.
func (s *Service) GetUserByEmail(ctx context.Context, appID, email string) (*AppUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrNotFound
	}
	return s.store.AppUsers(ctx).FindByEmail(ctx, appID, email)
}

// ListUsers returns every account of an application.
func (s *Service) ListUsers(ctx context.Context, appID string) ([]*AppUser, error) {
	return s.store.AppUsers(ctx).ListByApplication(ctx, appID)
}

// UpdateUser applies upd. Password rotation re-hashes through the vault.
func (s *Service) UpdateUser(ctx context.Context, appID, userID string, upd AppUserUpdate) (*AppUser, error) {
	if upd.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if err := upd.validate(); err != nil {
		return nil, err
	}
	users := s.store.AppUsers(ctx)
	u, err := users.Find(ctx, appID, userID)
	if err != nil {
		return nil, err
	}

	changed := make([]string, 0, 4)
	if upd.Username != nil {
		u.Username = strings.TrimSpace(*upd.Username)
		changed = append(changed, "username")
	}
	switch {
	case upd.ClearEmail:
		u.Email = nil
		changed = append(changed, "email")
	case upd.Email != nil:
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		u.Email = &email
		changed = append(changed, "email")
	}
	if upd.Password != nil {
		hash, err := s.hashSecret(*upd.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
		changed = append(changed, "password")
	}
	switch {
	case upd.ClearExpiry:
		u.ExpiresAt = nil
		changed = append(changed, "expires_at")
	case upd.ExpiresAt != nil:
		exp := upd.ExpiresAt.UTC()
		u.ExpiresAt = &exp
		changed = append(changed, "expires_at")
	}
	u.UpdatedAt = s.clock()

	if err := users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.adminRecord(ctx, appID, userID, ActivityUserUpdated, EventUserUpdated, map[string]string{
		"username": u.Username,
		"fields":   strings.Join(changed, ","),
	})
	return u, nil
}

// DeleteUser removes an account. Its sessions go with it; activity rows keep
// their history with the user reference cleared.
func (s *Service) DeleteUser(ctx context.Context, appID, userID string) error {
	users := s.store.AppUsers(ctx)
	u, err := users.Find(ctx, appID, userID)
	if err != nil {
		return err
	}
	if err := users.Delete(ctx, appID, userID); err != nil {
		return err
	}
	s.adminRecord(ctx, appID, "", ActivityUserDeleted, EventUserDeleted, map[string]string{
		"username":    u.Username,
		"app_user_id": userID,
	})
	return nil
}

func (s *Service) hashSecret(secret string) (string, error) {
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		if errors.Is(err, vault.ErrInvalidSecret) {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return "", internal(err)
	}
	return hash, nil
}

func validateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("%w: username longer than %d characters", ErrInvalidInput, maxUsernameLength)
	}
	return nil
}

func validateEmail(email string) error {
	if err := fieldValidator.Var(strings.TrimSpace(email), "required,email"); err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return nil
}
