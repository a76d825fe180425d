package authority

import (
	"errors"
	"fmt"
)

// Login failure kinds.
var (
	ErrInvalidCredentials = errors.New("authority: invalid credentials")
	ErrAccountBlocked     = errors.New("authority: account blocked")
	ErrAccountExpired     = errors.New("authority: account expired")
	ErrAccountPaused      = errors.New("authority: account paused")
	ErrAccountDeleted     = errors.New("authority: account deleted")
	ErrHWIDMismatch       = errors.New("authority: hwid mismatch")
	ErrInternal           = errors.New("authority: internal error")
)

// Administrative and storage errors.
var (
	ErrNotFound            = errors.New("authority: not found")
	ErrConflict            = errors.New("authority: conflict")
	ErrInvalidInput        = errors.New("authority: invalid input")
	ErrApplicationDisabled = errors.New("authority: application disabled")
)

// ErrorKind is the caller-visible classification of an error.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindInvalidCredentials  ErrorKind = "invalid_credentials"
	KindAccountBlocked      ErrorKind = "account_blocked"
	KindAccountExpired      ErrorKind = "account_expired"
	KindAccountPaused       ErrorKind = "account_paused"
	KindAccountDeleted      ErrorKind = "account_deleted"
	KindHWIDMismatch        ErrorKind = "hwid_mismatch"
	KindInternal            ErrorKind = "internal_error"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindApplicationDisabled ErrorKind = "application_disabled"
)

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	// ErrInternal first: internal errors may also wrap a storage sentinel.
	{ErrInternal, KindInternal},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrAccountBlocked, KindAccountBlocked},
	{ErrAccountExpired, KindAccountExpired},
	{ErrAccountPaused, KindAccountPaused},
	{ErrAccountDeleted, KindAccountDeleted},
	{ErrHWIDMismatch, KindHWIDMismatch},
	{ErrApplicationDisabled, KindApplicationDisabled},
	{ErrNotFound, KindNotFound},
	{ErrConflict, KindConflict},
	{ErrInvalidInput, KindInvalidInput},
}

// KindOf classifies err. Unrecognised errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kindTable {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

func internal(err error) error {
	if err == nil || errors.Is(err, ErrInternal) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}
