package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/authority"
)

type errClass int

const (
	classOther errClass = iota
	classNotFound
	classConflict
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func classify(err error) (errClass, string) {
	if errors.Is(err, sql.ErrNoRows) {
		return classNotFound, ""
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return classConflict, pgErr.ConstraintName
		case pgForeignKeyViolation:
			return classNotFound, pgErr.ConstraintName
		}
		return classOther, ""
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return classConflict, ""
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return classNotFound, ""
		case sqlite3.SQLITE_CONSTRAINT:
			// primary code only when extended codes are off
			msg := liteErr.Error()
			switch {
			case strings.Contains(msg, "FOREIGN KEY"):
				return classNotFound, ""
			case strings.Contains(msg, "UNIQUE"), strings.Contains(msg, "PRIMARY KEY"):
				return classConflict, ""
			}
		}
	}
	return classOther, ""
}

// mapError translates driver errors into authority sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch class, detail := classify(err); class {
	case classNotFound:
		return authority.ErrNotFound
	case classConflict:
		if detail != "" {
			return fmt.Errorf("%w: %s", authority.ErrConflict, detail)
		}
		return authority.ErrConflict
	}
	return err
}

// mapOperatorError translates driver errors into auth sentinels.
func mapOperatorError(err error) error {
	if err == nil {
		return nil
	}
	switch class, _ := classify(err); class {
	case classNotFound:
		return auth.ErrNotFound
	case classConflict:
		return auth.ErrConflict
	}
	return err
}
