package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/phantom-auth/authority/internal/authority"
)

type activityStore struct{ s *Store }

const activityColumns = `id, application_id, app_user_id, event, success, detail, ip, hwid, metadata, created_at`

func scanActivity(row scanner) (*authority.ActivityLog, error) {
	var (
		a        authority.ActivityLog
		userID   sql.NullString
		metadata sql.NullString
	)
	err := row.Scan(&a.ID, &a.ApplicationID, &userID, &a.Event, &a.Success, &a.Detail, &a.IP, &a.HWID, &metadata, &a.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	a.AppUserID = stringPtr(userID)
	a.CreatedAt = utc(a.CreatedAt)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode activity metadata: %w", err)
		}
	}
	return &a, nil
}

func (as *activityStore) Append(ctx context.Context, entry *authority.ActivityLog) error {
	var metadata sql.NullString
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode activity metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := as.s.exec(ctx, `
		insert into activity_logs(id, application_id, app_user_id, event, success, detail, ip, hwid, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.ApplicationID, nullString(entry.AppUserID), entry.Event, entry.Success, entry.Detail,
		entry.IP, entry.HWID, metadata, utc(entry.CreatedAt))
	return mapError(err)
}

func (as *activityStore) List(ctx context.Context, appID string, limit int) ([]*authority.ActivityLog, error) {
	return as.list(ctx, `
		select `+activityColumns+` from activity_logs
		where application_id = $1
		order by created_at desc, id desc
		limit $2`, appID, limit)
}

func (as *activityStore) ListByUser(ctx context.Context, appID, userID string, limit int) ([]*authority.ActivityLog, error) {
	return as.list(ctx, `
		select `+activityColumns+` from activity_logs
		where application_id = $1 and app_user_id = $2
		order by created_at desc, id desc
		limit $3`, appID, userID, limit)
}

func (as *activityStore) list(ctx context.Context, query string, args ...any) ([]*authority.ActivityLog, error) {
	rows, err := as.s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*authority.ActivityLog, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
