package sqlstore

import (
	"context"
	"strings"

	"github.com/phantom-auth/authority/internal/auth"
)

type operatorStore struct{ s *Store }

const operatorColumns = `id, email, password_hash, role, is_active, created_at, updated_at`

func scanOperator(row scanner) (*auth.Operator, error) {
	var op auth.Operator
	if err := row.Scan(&op.ID, &op.Email, &op.PasswordHash, &op.Role, &op.IsActive, &op.CreatedAt, &op.UpdatedAt); err != nil {
		return nil, mapOperatorError(err)
	}
	op.CreatedAt = utc(op.CreatedAt)
	op.UpdatedAt = utc(op.UpdatedAt)
	return &op, nil
}

func (o *operatorStore) Upsert(ctx context.Context, op *auth.Operator) error {
	if op == nil || op.ID == "" || op.Email == "" {
		return auth.ErrInvalidInput
	}
	err := o.s.queryRow(ctx, `
		insert into operators(id, email, password_hash, role, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (email) do update
		set password_hash = excluded.password_hash,
		    role = excluded.role,
		    is_active = excluded.is_active,
		    updated_at = excluded.updated_at
		returning id, created_at`,
		op.ID, strings.ToLower(op.Email), op.PasswordHash, string(op.Role), op.IsActive, utc(op.CreatedAt), utc(op.UpdatedAt),
	).Scan(&op.ID, &op.CreatedAt)
	if err != nil {
		return mapOperatorError(err)
	}
	op.CreatedAt = utc(op.CreatedAt)
	return nil
}

func (o *operatorStore) Find(ctx context.Context, id string) (*auth.Operator, error) {
	return scanOperator(o.s.queryRow(ctx, `select `+operatorColumns+` from operators where id = $1`, id))
}

func (o *operatorStore) FindByEmail(ctx context.Context, email string) (*auth.Operator, error) {
	return scanOperator(o.s.queryRow(ctx, `select `+operatorColumns+` from operators where email = $1`, strings.ToLower(email)))
}

func (o *operatorStore) List(ctx context.Context) ([]*auth.Operator, error) {
	rows, err := o.s.query(ctx, `select `+operatorColumns+` from operators order by email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*auth.Operator, 0)
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}
