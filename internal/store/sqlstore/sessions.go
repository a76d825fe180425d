package sqlstore

import (
	"context"
	"time"

	"github.com/phantom-auth/authority/internal/authority"
)

type sessionStore struct{ s *Store }

const sessionColumns = `id, application_id, app_user_id, token, hwid, ip, user_agent, is_active, created_at, last_activity`

func scanSession(row scanner) (*authority.Session, error) {
	var sess authority.Session
	err := row.Scan(&sess.ID, &sess.ApplicationID, &sess.AppUserID, &sess.Token, &sess.HWID, &sess.IP,
		&sess.UserAgent, &sess.IsActive, &sess.CreatedAt, &sess.LastActivity)
	if err != nil {
		return nil, mapError(err)
	}
	sess.CreatedAt = utc(sess.CreatedAt)
	sess.LastActivity = utc(sess.LastActivity)
	return &sess, nil
}

// Create inserts the session; with replaceActive the account's other active
// sessions are switched off in the same transaction. On Postgres the account
// row is locked first so concurrent logins for one account serialize; SQLite
// runs a single connection and needs no lock.
func (ss *sessionStore) Create(ctx context.Context, sess *authority.Session, replaceActive bool) error {
	tx, err := ss.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if replaceActive {
		if ss.s.dialect == Postgres {
			var one int
			err := tx.QueryRowContext(ctx, `
				select 1 from app_users where application_id = $1 and id = $2 for update`,
				sess.ApplicationID, sess.AppUserID).Scan(&one)
			if err != nil {
				return mapError(err)
			}
		}
		if _, err := tx.ExecContext(ctx, ss.s.rebind(`
			update sessions set is_active = false
			where application_id = $1 and app_user_id = $2 and is_active`),
			sess.ApplicationID, sess.AppUserID); err != nil {
			return mapError(err)
		}
	}
	if _, err := tx.ExecContext(ctx, ss.s.rebind(`
		insert into sessions(id, application_id, app_user_id, token, hwid, ip, user_agent, is_active, created_at, last_activity)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`),
		sess.ID, sess.ApplicationID, sess.AppUserID, sess.Token, sess.HWID, sess.IP, sess.UserAgent,
		sess.IsActive, utc(sess.CreatedAt), utc(sess.LastActivity)); err != nil {
		return mapError(err)
	}
	return tx.Commit()
}

func (ss *sessionStore) FindByToken(ctx context.Context, token string) (*authority.Session, error) {
	return scanSession(ss.s.queryRow(ctx, `select `+sessionColumns+` from sessions where token = $1`, token))
}

func (ss *sessionStore) Touch(ctx context.Context, token string, at time.Time) (bool, error) {
	n, err := ss.s.exec(ctx, `update sessions set last_activity = $1 where token = $2 and is_active`, utc(at), token)
	if err != nil {
		return false, mapError(err)
	}
	return n > 0, nil
}

func (ss *sessionStore) Deactivate(ctx context.Context, token string) (bool, error) {
	n, err := ss.s.exec(ctx, `update sessions set is_active = false where token = $1 and is_active`, token)
	if err != nil {
		return false, mapError(err)
	}
	return n > 0, nil
}

func (ss *sessionStore) DeactivateByUser(ctx context.Context, appID, userID string) (int, error) {
	n, err := ss.s.exec(ctx, `update sessions set is_active = false where application_id = $1 and app_user_id = $2 and is_active`,
		appID, userID)
	if err != nil {
		return 0, mapError(err)
	}
	return int(n), nil
}

func (ss *sessionStore) DeactivateIdle(ctx context.Context, before time.Time) (int, error) {
	n, err := ss.s.exec(ctx, `update sessions set is_active = false where is_active and last_activity < $1`, utc(before))
	if err != nil {
		return 0, mapError(err)
	}
	return int(n), nil
}

func (ss *sessionStore) ListActive(ctx context.Context, appID string) ([]*authority.Session, error) {
	return ss.list(ctx, `select `+sessionColumns+` from sessions where application_id = $1 and is_active order by id`, appID)
}

func (ss *sessionStore) ListByUser(ctx context.Context, appID, userID string) ([]*authority.Session, error) {
	return ss.list(ctx, `select `+sessionColumns+` from sessions where application_id = $1 and app_user_id = $2 order by id`, appID, userID)
}

func (ss *sessionStore) list(ctx context.Context, query string, args ...any) ([]*authority.Session, error) {
	rows, err := ss.s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*authority.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
