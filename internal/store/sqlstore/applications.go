package sqlstore

import (
	"context"

	"github.com/phantom-auth/authority/internal/authority"
)

type appStore struct{ s *Store }

const applicationColumns = `id, owner_id, name, description, api_key, is_active, created_at, updated_at`

func scanApplication(row scanner) (*authority.Application, error) {
	var app authority.Application
	if err := row.Scan(&app.ID, &app.OwnerID, &app.Name, &app.Description, &app.APIKey, &app.IsActive, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	app.CreatedAt = utc(app.CreatedAt)
	app.UpdatedAt = utc(app.UpdatedAt)
	return &app, nil
}

func (a *appStore) Create(ctx context.Context, app *authority.Application) error {
	_, err := a.s.exec(ctx, `
		insert into applications(id, owner_id, name, description, api_key, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		app.ID, app.OwnerID, app.Name, app.Description, app.APIKey, app.IsActive, utc(app.CreatedAt), utc(app.UpdatedAt))
	return mapError(err)
}

func (a *appStore) Find(ctx context.Context, id string) (*authority.Application, error) {
	return scanApplication(a.s.queryRow(ctx, `select `+applicationColumns+` from applications where id = $1`, id))
}

func (a *appStore) FindByAPIKey(ctx context.Context, apiKey string) (*authority.Application, error) {
	return scanApplication(a.s.queryRow(ctx, `select `+applicationColumns+` from applications where api_key = $1`, apiKey))
}

func (a *appStore) List(ctx context.Context) ([]*authority.Application, error) {
	return a.list(ctx, `select `+applicationColumns+` from applications order by id`)
}

func (a *appStore) ListByOwner(ctx context.Context, ownerID string) ([]*authority.Application, error) {
	return a.list(ctx, `select `+applicationColumns+` from applications where owner_id = $1 order by id`, ownerID)
}

func (a *appStore) list(ctx context.Context, query string, args ...any) ([]*authority.Application, error) {
	rows, err := a.s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*authority.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (a *appStore) Update(ctx context.Context, app *authority.Application) error {
	n, err := a.s.exec(ctx, `
		update applications
		set name = $1, description = $2, api_key = $3, is_active = $4, updated_at = $5
		where id = $6`,
		app.Name, app.Description, app.APIKey, app.IsActive, utc(app.UpdatedAt), app.ID)
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return authority.ErrNotFound
	}
	return nil
}

// Delete relies on foreign keys declared with on delete cascade.
func (a *appStore) Delete(ctx context.Context, id string) error {
	n, err := a.s.exec(ctx, `delete from applications where id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return authority.ErrNotFound
	}
	return nil
}
