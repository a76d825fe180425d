// Package sqlstore implements the authority and operator stores on
// database/sql, for Postgres (pgx) and SQLite (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/authority"
	"github.com/phantom-auth/authority/internal/migrate"
)

// Dialect names the SQL driver in use.
type Dialect string

const (
	Postgres Dialect = "pgx"
	SQLite   Dialect = "sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

var placeholderRE = regexp.MustCompile(`\$(\d+)`)

// Store implements authority.Store on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ authority.Store = (*Store)(nil)

// Open connects to dsn using driver and applies per-driver connection settings.
func Open(driver, dsn string) (*Store, error) {
	dialect := Dialect(strings.ToLower(strings.TrimSpace(driver)))
	switch dialect {
	case Postgres, "postgres":
		db, err := sql.Open(string(Postgres), dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(15 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
		return New(db, Postgres), nil
	case SQLite:
		return openSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openSQLite(dsn string) (*Store, error) {
	if !strings.Contains(dsn, "_time_format=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}
	db, err := sql.Open(string(SQLite), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}
	return New(db, SQLite), nil
}

// New wraps an existing handle.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the driver the store was opened with.
func (s *Store) Dialect() Dialect { return s.dialect }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrations returns the embedded migration files for the store's dialect.
func (s *Store) Migrations() (fs.FS, error) {
	dir := "migrations/postgres"
	if s.dialect == SQLite {
		dir = "migrations/sqlite"
	}
	return fs.Sub(migrationsFS, dir)
}

// Migrator returns a migration manager bound to the store.
func (s *Store) Migrator() (*migrate.Manager, error) {
	source, err := s.Migrations()
	if err != nil {
		return nil, err
	}
	return migrate.NewManager(s.db, source, migrate.WithRebind(s.rebind)), nil
}

// rebind rewrites $N placeholders into SQLite's ?N form.
func (s *Store) rebind(query string) string {
	if s.dialect != SQLite {
		return query
	}
	return placeholderRE.ReplaceAllString(query, "?$1")
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

// exists reports whether query returns a row.
func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.queryRow(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Applications(context.Context) authority.ApplicationStore { return &appStore{s} }
func (s *Store) AppUsers(context.Context) authority.AppUserStore         { return &userStore{s} }
func (s *Store) Blacklist(context.Context) authority.BlacklistStore      { return &blacklistStore{s} }
func (s *Store) Sessions(context.Context) authority.SessionStore         { return &sessionStore{s} }
func (s *Store) Activity(context.Context) authority.ActivityStore        { return &activityStore{s} }
func (s *Store) Webhooks(context.Context) authority.WebhookStore         { return &webhookStore{s} }

// Operators returns the operator identity store.
func (s *Store) Operators() auth.OperatorStore { return &operatorStore{s} }

type scanner interface {
	Scan(dest ...any) error
}

func utc(t time.Time) time.Time { return t.UTC() }

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}
