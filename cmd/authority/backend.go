package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/authority"
	"github.com/phantom-auth/authority/internal/config"
	"github.com/phantom-auth/authority/internal/store/sqlstore"
)

// backend bundles the stores selected by AUTHORITY_DB_DRIVER.
type backend struct {
	store     authority.Store
	operators auth.OperatorStore
	sql       *sqlstore.Store
	ping      func(context.Context) error
}

func openBackend(c *config.Config) (*backend, error) {
	if c.DBDriver == "memory" {
		mem := authority.NewMemoryStore()
		return &backend{
			store:     mem,
			operators: auth.NewMemoryOperators(),
			ping:      mem.Ping,
		}, nil
	}
	st, err := sqlstore.Open(c.DBDriver, c.DBDSN)
	if err != nil {
		return nil, err
	}
	return &backend{
		store:     st,
		operators: st.Operators(),
		sql:       st,
		ping:      st.Ping,
	}, nil
}

// openSQL is used by commands that only make sense against a database.
func openSQL(c *config.Config) (*sqlstore.Store, error) {
	if c.DBDriver == "memory" {
		return nil, errors.New("this command needs a database; set AUTHORITY_DB_DRIVER to pgx or sqlite")
	}
	st, err := sqlstore.Open(c.DBDriver, c.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

func (b *backend) Ping(ctx context.Context) error { return b.ping(ctx) }

func (b *backend) Close() error {
	if b.sql != nil {
		return b.sql.Close()
	}
	return nil
}
