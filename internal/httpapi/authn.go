package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/authority"
)

const (
	authHeader   = "Authorization"
	apiKeyHeader = "X-API-Key"
	bearer       = "Bearer "
)

type ctxKey int

const applicationKey ctxKey = iota

func contextWithApplication(ctx context.Context, app *authority.Application) context.Context {
	return context.WithValue(ctx, applicationKey, app)
}

func applicationFromContext(ctx context.Context) *authority.Application {
	app, _ := ctx.Value(applicationKey).(*authority.Application)
	return app
}

// withAPIKey resolves the calling application from X-API-Key.
func (a *API) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(apiKeyHeader))
		if key == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing api key")
			return
		}
		app, err := a.authority.ApplicationByAPIKey(r.Context(), key)
		switch {
		case errors.Is(err, authority.ErrNotFound):
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		case err != nil:
			a.handleError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithApplication(r.Context(), app)))
	})
}

// withOperator authenticates the bearer token and attaches the principal.
func (a *API) withOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		principal, err := a.operators.Authenticate(r.Context(), token)
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (a *API) requirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				a.handleAuthError(w, r, auth.ErrUnauthorized)
				return
			}
			if !principal.HasPermission(perm) {
				a.handleAuthError(w, r, auth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withApplication loads {appID} and checks the principal may manage it.
// Applications the operator cannot see answer 404.
func (a *API) withApplication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			a.handleAuthError(w, r, auth.ErrUnauthorized)
			return
		}
		app, err := a.authority.GetApplication(r.Context(), chi.URLParam(r, "appID"))
		if err != nil {
			a.handleError(w, r, err)
			return
		}
		if !principal.CanAccessApplication(app.OwnerID) {
			a.handleError(w, r, authority.ErrNotFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithApplication(r.Context(), app)))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
