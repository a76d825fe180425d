package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/phantom-auth/authority/internal/authority"
)

type userStore struct{ s *Store }

const userColumns = `id, application_id, username, email, password_hash, hwid, is_paused, expires_at, last_login_at, created_at, updated_at`

func scanUser(row scanner) (*authority.AppUser, error) {
	var (
		u                 authority.AppUser
		email, hwid       sql.NullString
		expires, lastSeen sql.NullTime
	)
	err := row.Scan(&u.ID, &u.ApplicationID, &u.Username, &email, &u.PasswordHash, &hwid,
		&u.IsPaused, &expires, &lastSeen, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	u.Email = stringPtr(email)
	u.HWID = stringPtr(hwid)
	u.ExpiresAt = timePtr(expires)
	u.LastLoginAt = timePtr(lastSeen)
	u.CreatedAt = utc(u.CreatedAt)
	u.UpdatedAt = utc(u.UpdatedAt)
	return &u, nil
}

func (us *userStore) Create(ctx context.Context, u *authority.AppUser) error {
	_, err := us.s.exec(ctx, `
		insert into app_users(id, application_id, username, email, password_hash, hwid, is_paused, expires_at, last_login_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.ApplicationID, u.Username, nullString(u.Email), u.PasswordHash, nullString(u.HWID),
		u.IsPaused, nullTime(u.ExpiresAt), nullTime(u.LastLoginAt), utc(u.CreatedAt), utc(u.UpdatedAt))
	return mapError(err)
}

func (us *userStore) Find(ctx context.Context, appID, id string) (*authority.AppUser, error) {
	return scanUser(us.s.queryRow(ctx, `select `+userColumns+` from app_users where application_id = $1 and id = $2`, appID, id))
}

func (us *userStore) FindByUsername(ctx context.Context, appID, username string) (*authority.AppUser, error) {
	return scanUser(us.s.queryRow(ctx, `select `+userColumns+` from app_users where application_id = $1 and username = $2`, appID, username))
}

func (us *userStore) FindByEmail(ctx context.Context, appID, email string) (*authority.AppUser, error) {
	return scanUser(us.s.queryRow(ctx, `select `+userColumns+` from app_users where application_id = $1 and email = $2`, appID, email))
}

func (us *userStore) ListByApplication(ctx context.Context, appID string) ([]*authority.AppUser, error) {
	rows, err := us.s.query(ctx, `select `+userColumns+` from app_users where application_id = $1 order by id`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*authority.AppUser, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (us *userStore) Update(ctx context.Context, u *authority.AppUser) error {
	n, err := us.s.exec(ctx, `
		update app_users
		set username = $1, email = $2, password_hash = $3, expires_at = $4, updated_at = $5
		where application_id = $6 and id = $7`,
		u.Username, nullString(u.Email), u.PasswordHash, nullTime(u.ExpiresAt), utc(u.UpdatedAt), u.ApplicationID, u.ID)
	return affectedOne(n, err)
}

// Delete cascades to sessions and detaches activity rows through foreign keys.
func (us *userStore) Delete(ctx context.Context, appID, id string) error {
	n, err := us.s.exec(ctx, `delete from app_users where application_id = $1 and id = $2`, appID, id)
	return affectedOne(n, err)
}

func (us *userStore) SetPaused(ctx context.Context, appID, id string, paused bool, at time.Time) error {
	n, err := us.s.exec(ctx, `update app_users set is_paused = $1, updated_at = $2 where application_id = $3 and id = $4`,
		paused, utc(at), appID, id)
	return affectedOne(n, err)
}

func (us *userStore) BindHWID(ctx context.Context, appID, id, hwid string, at time.Time) (bool, error) {
	n, err := us.s.exec(ctx, `
		update app_users set hwid = $1, updated_at = $2
		where application_id = $3 and id = $4 and hwid is null`,
		hwid, utc(at), appID, id)
	if err != nil {
		return false, mapError(err)
	}
	if n == 1 {
		return true, nil
	}
	ok, err := us.s.exists(ctx, `select 1 from app_users where application_id = $1 and id = $2`, appID, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, authority.ErrNotFound
	}
	return false, nil
}

func (us *userStore) SetHWID(ctx context.Context, appID, id string, hwid *string, at time.Time) error {
	n, err := us.s.exec(ctx, `update app_users set hwid = $1, updated_at = $2 where application_id = $3 and id = $4`,
		nullString(hwid), utc(at), appID, id)
	return affectedOne(n, err)
}

func (us *userStore) TouchLogin(ctx context.Context, appID, id string, at time.Time) error {
	n, err := us.s.exec(ctx, `update app_users set last_login_at = $1 where application_id = $2 and id = $3`,
		utc(at), appID, id)
	return affectedOne(n, err)
}

func affectedOne(n int64, err error) error {
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return authority.ErrNotFound
	}
	return nil
}
