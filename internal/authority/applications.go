package authority

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phantom-auth/authority/internal/ids"
)

// APIKeyPrefix is prepended to every generated application key.
const APIKeyPrefix = "phantom"

const maxApplicationName = 128

// NewApplication carries the fields accepted when registering a tenant.
type NewApplication struct {
	OwnerID     string
	Name        string
	Description string
}

// ApplicationUpdate is the closed set of mutable tenant fields. Nil means unchanged.
type ApplicationUpdate struct {
	Name        *string
	Description *string
	IsActive    *bool
}

// CreateApplication registers a tenant with a freshly generated API key.
func (s *Service) CreateApplication(ctx context.Context, in NewApplication) (*Application, error) {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Name = strings.TrimSpace(in.Name)
	if in.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if err := validateAppName(in.Name); err != nil {
		return nil, err
	}
	apps := s.store.Applications(ctx)
	now := s.clock()
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		key, err := ids.NewAPIKey(APIKeyPrefix)
		if err != nil {
			return nil, internal(err)
		}
		app := &Application{
			ID:          ids.New(),
			OwnerID:     in.OwnerID,
			Name:        in.Name,
			Description: strings.TrimSpace(in.Description),
			APIKey:      key,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err = apps.Create(ctx, app)
		if err == nil {
			return app, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	return nil, internal(errors.New("api key collision"))
}

// GetApplication returns one tenant.
func (s *Service) GetApplication(ctx context.Context, id string) (*Application, error) {
	return s.store.Applications(ctx).Find(ctx, id)
}

// ApplicationByAPIKey resolves the tenant owning apiKey. Disabled tenants
// return ErrApplicationDisabled.
func (s *Service) ApplicationByAPIKey(ctx context.Context, apiKey string) (*Application, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotFound
	}
	app, err := s.store.Applications(ctx).FindByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if !app.IsActive {
		return nil, ErrApplicationDisabled
	}
	return app, nil
}

// ListApplications returns the tenants of ownerID, or every tenant when ownerID is empty.
func (s *Service) ListApplications(ctx context.Context, ownerID string) ([]*Application, error) {
	apps := s.store.Applications(ctx)
	if ownerID == "" {
		return apps.List(ctx)
	}
	return apps.ListByOwner(ctx, ownerID)
}

// UpdateApplication applies upd.
func (s *Service) UpdateApplication(ctx context.Context, id string, upd ApplicationUpdate) (*Application, error) {
	if upd.Name == nil && upd.Description == nil && upd.IsActive == nil {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	apps := s.store.Applications(ctx)
	app, err := apps.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := validateAppName(name); err != nil {
			return nil, err
		}
		app.Name = name
	}
	if upd.Description != nil {
		app.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.IsActive != nil {
		app.IsActive = *upd.IsActive
	}
	app.UpdatedAt = s.clock()
	if err := apps.Update(ctx, app); err != nil {
		return nil, err
	}
	s.emit(ctx, EventApplicationUpdated, app.ID, "", map[string]any{
		"name":      app.Name,
		"is_active": app.IsActive,
	})
	return app, nil
}

// RotateAPIKey replaces the tenant API key. The old key stops working immediately.
func (s *Service) RotateAPIKey(ctx context.Context, id string) (*Application, error) {
	apps := s.store.Applications(ctx)
	app, err := apps.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	key, err := ids.NewAPIKey(APIKeyPrefix)
	if err != nil {
		return nil, internal(err)
	}
	app.APIKey = key
	app.UpdatedAt = s.clock()
	if err := apps.Update(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// DeleteApplication removes the tenant and everything scoped to it.
func (s *Service) DeleteApplication(ctx context.Context, id string) error {
	return s.store.Applications(ctx).Delete(ctx, id)
}

func validateAppName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(name) > maxApplicationName {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidInput, maxApplicationName)
	}
	return nil
}
