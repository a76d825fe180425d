package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phantom-auth/authority/internal/authority"
)

type webhookStore struct{ s *Store }

const webhookColumns = `id, application_id, url, secret, events, is_active, created_at, updated_at`

func scanWebhook(row scanner) (*authority.Webhook, error) {
	var (
		w      authority.Webhook
		events string
	)
	if err := row.Scan(&w.ID, &w.ApplicationID, &w.URL, &w.Secret, &events, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal([]byte(events), &w.Events); err != nil {
		return nil, fmt.Errorf("decode webhook events: %w", err)
	}
	w.CreatedAt = utc(w.CreatedAt)
	w.UpdatedAt = utc(w.UpdatedAt)
	return &w, nil
}

func encodeEvents(events []string) (string, error) {
	if events == nil {
		events = []string{}
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("encode webhook events: %w", err)
	}
	return string(raw), nil
}

func (ws *webhookStore) Create(ctx context.Context, w *authority.Webhook) error {
	events, err := encodeEvents(w.Events)
	if err != nil {
		return err
	}
	_, err = ws.s.exec(ctx, `
		insert into webhooks(id, application_id, url, secret, events, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID, w.ApplicationID, w.URL, w.Secret, events, w.IsActive, utc(w.CreatedAt), utc(w.UpdatedAt))
	return mapError(err)
}

func (ws *webhookStore) Find(ctx context.Context, appID, id string) (*authority.Webhook, error) {
	return scanWebhook(ws.s.queryRow(ctx, `select `+webhookColumns+` from webhooks where application_id = $1 and id = $2`, appID, id))
}

func (ws *webhookStore) ListByApplication(ctx context.Context, appID string) ([]*authority.Webhook, error) {
	rows, err := ws.s.query(ctx, `select `+webhookColumns+` from webhooks where application_id = $1 order by id`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*authority.Webhook, 0)
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (ws *webhookStore) Update(ctx context.Context, w *authority.Webhook) error {
	events, err := encodeEvents(w.Events)
	if err != nil {
		return err
	}
	n, err := ws.s.exec(ctx, `
		update webhooks set url = $1, secret = $2, events = $3, is_active = $4, updated_at = $5
		where application_id = $6 and id = $7`,
		w.URL, w.Secret, events, w.IsActive, utc(w.UpdatedAt), w.ApplicationID, w.ID)
	return affectedOne(n, err)
}

func (ws *webhookStore) Delete(ctx context.Context, appID, id string) error {
	n, err := ws.s.exec(ctx, `delete from webhooks where application_id = $1 and id = $2`, appID, id)
	return affectedOne(n, err)
}
