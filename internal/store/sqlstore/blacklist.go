package sqlstore

import (
	"context"

	"github.com/phantom-auth/authority/internal/authority"
)

type blacklistStore struct{ s *Store }

const blacklistColumns = `id, application_id, type, value, reason, is_active, created_at`

func scanBlacklist(row scanner) (*authority.BlacklistEntry, error) {
	var e authority.BlacklistEntry
	if err := row.Scan(&e.ID, &e.ApplicationID, &e.Type, &e.Value, &e.Reason, &e.IsActive, &e.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	e.CreatedAt = utc(e.CreatedAt)
	return &e, nil
}

func (b *blacklistStore) Create(ctx context.Context, e *authority.BlacklistEntry) error {
	_, err := b.s.exec(ctx, `
		insert into blacklist(id, application_id, type, value, reason, is_active, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ApplicationID, string(e.Type), e.Value, e.Reason, e.IsActive, utc(e.CreatedAt))
	return mapError(err)
}

func (b *blacklistStore) Find(ctx context.Context, appID, id string) (*authority.BlacklistEntry, error) {
	return scanBlacklist(b.s.queryRow(ctx, `select `+blacklistColumns+` from blacklist where application_id = $1 and id = $2`, appID, id))
}

func (b *blacklistStore) Match(ctx context.Context, appID string, typ authority.BlacklistType, value string) (*authority.BlacklistEntry, error) {
	return scanBlacklist(b.s.queryRow(ctx, `
		select `+blacklistColumns+` from blacklist
		where application_id = $1 and type = $2 and value = $3 and is_active
		order by id
		limit 1`, appID, string(typ), value))
}

func (b *blacklistStore) ListByApplication(ctx context.Context, appID string) ([]*authority.BlacklistEntry, error) {
	rows, err := b.s.query(ctx, `select `+blacklistColumns+` from blacklist where application_id = $1 order by id`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*authority.BlacklistEntry, 0)
	for rows.Next() {
		e, err := scanBlacklist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *blacklistStore) Deactivate(ctx context.Context, appID, id string) (bool, error) {
	n, err := b.s.exec(ctx, `update blacklist set is_active = false where application_id = $1 and id = $2 and is_active`, appID, id)
	if err != nil {
		return false, mapError(err)
	}
	if n == 1 {
		return true, nil
	}
	ok, err := b.s.exists(ctx, `select 1 from blacklist where application_id = $1 and id = $2`, appID, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, authority.ErrNotFound
	}
	return false, nil
}

func (b *blacklistStore) Delete(ctx context.Context, appID, id string) error {
	n, err := b.s.exec(ctx, `delete from blacklist where application_id = $1 and id = $2`, appID, id)
	return affectedOne(n, err)
}
