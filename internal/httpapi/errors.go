package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/authority"
)

const maxBodyBytes = 1 << 20

var kindStatus = map[authority.ErrorKind]int{
	authority.KindInvalidCredentials:  http.StatusUnauthorized,
	authority.KindAccountBlocked:      http.StatusForbidden,
	authority.KindAccountExpired:      http.StatusForbidden,
	authority.KindAccountPaused:       http.StatusForbidden,
	authority.KindAccountDeleted:      http.StatusForbidden,
	authority.KindHWIDMismatch:        http.StatusForbidden,
	authority.KindApplicationDisabled: http.StatusForbidden,
	authority.KindNotFound:            http.StatusNotFound,
	authority.KindConflict:            http.StatusConflict,
	authority.KindInvalidInput:        http.StatusBadRequest,
	authority.KindInternal:            http.StatusInternalServerError,
}

var kindMessage = map[authority.ErrorKind]string{
	authority.KindInvalidCredentials:  "invalid credentials",
	authority.KindAccountBlocked:      "account is blocked",
	authority.KindAccountExpired:      "account has expired",
	authority.KindAccountPaused:       "account is paused",
	authority.KindAccountDeleted:      "account does not exist",
	authority.KindHWIDMismatch:        "hardware id does not match",
	authority.KindApplicationDisabled: "application is disabled",
	authority.KindNotFound:            "resource not found",
	authority.KindConflict:            "resource already exists",
	authority.KindInternal:            "internal error",
}

// handleError maps an authority error to its status. Only invalid input
// echoes the error text; internal causes are logged, never returned.
func (a *API) handleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := authority.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
		kind = authority.KindInternal
	}
	msg := kindMessage[kind]
	if kind == authority.KindInvalidInput {
		msg = strings.TrimPrefix(err.Error(), authority.ErrInvalidInput.Error()+": ")
	}
	if kind == authority.KindInternal {
		a.log.Error("request failed", zap.String("request_id", RequestIDFromContext(r.Context())), zap.Error(err))
	}
	writeError(w, r, status, string(kind), msg)
}

func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid credentials")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "operation not permitted")
	default:
		a.log.Error("operator authentication failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, string(authority.KindInternal), "authentication error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  kind,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, http.StatusBadRequest, string(authority.KindInvalidInput), msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeValid decodes the body into dst and runs struct validation.
func (a *API) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		badRequest(w, r, err.Error())
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		badRequest(w, r, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid url", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}
	return v, nil
}
