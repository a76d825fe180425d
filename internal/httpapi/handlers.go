package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/authority"
	"github.com/phantom-auth/authority/internal/obs"
	"github.com/phantom-auth/authority/internal/stream"
)

// Pinger reports storage readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks readiness, typically by pinging the store.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// Options wires the API to its services.
type Options struct {
	Authority  *authority.Service
	Operators  *auth.Service
	Ready      ReadyProbe
	Version    string
	RateBurst  int
	RatePerSec float64
	Logger     *zap.Logger
	// TrustedProxies lists peers allowed to set X-Forwarded-For.
	TrustedProxies []netip.Prefix
	// Stream enables the live event feed when set.
	Stream *stream.Hub
}

// API is the HTTP layer.
type API struct {
	authority  *authority.Service
	operators  *auth.Service
	readyProbe ReadyProbe
	version    string
	rateBurst  int
	ratePerSec float64
	log        *zap.Logger
	validate   *validator.Validate
	stream     *stream.Hub
	trusted    []netip.Prefix
}

// New constructs the API.
func New(opts Options) (*API, error) {
	if opts.Authority == nil {
		return nil, errors.New("httpapi: authority service is required")
	}
	if opts.Operators == nil {
		return nil, errors.New("httpapi: operator service is required")
	}
	a := &API{
		authority:  opts.Authority,
		operators:  opts.Operators,
		readyProbe: opts.Ready,
		version:    opts.Version,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
		log:        opts.Logger,
		validate:   newValidator(),
		stream:     opts.Stream,
		trusted:    opts.TrustedProxies,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	if a.log == nil {
		a.log = obs.Logger()
	}
	a.log = a.log.With(obs.Component("httpapi"))
	return a, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Handler returns the routed http.Handler.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(ClientIP(a.trusted))
	r.Use(RequestID)
	r.Use(Logging(a.log))
	r.Use(SecurityHeaders)
	r.Use(obs.Instrument)
	r.Use(func(next http.Handler) http.Handler {
		return RateLimit(next, a.rateBurst, a.ratePerSec)
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", a.Info)
		r.Post("/operator/token", a.handleOperatorToken)

		r.Route("/client", func(r chi.Router) {
			r.Use(a.withAPIKey)
			r.Post("/login", a.handleClientLogin)
			r.Post("/heartbeat", a.handleClientHeartbeat)
			r.Post("/logout", a.handleClientLogout)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.withOperator)
			r.Get("/operator/me", a.handleOperatorMe)
			r.With(a.requirePermission(auth.PermManageUsers)).Get("/operators", a.handleListOperators)

			r.Route("/applications", func(r chi.Router) {
				r.Use(a.requirePermission(auth.PermManageApplications))
				r.Get("/", a.handleListApplications)
				r.Post("/", a.handleCreateApplication)

				r.Route("/{appID}", func(r chi.Router) {
					r.Use(a.withApplication)
					r.Get("/", a.handleGetApplication)
					r.Patch("/", a.handleUpdateApplication)
					r.Delete("/", a.handleDeleteApplication)
					r.Post("/rotate-key", a.handleRotateAPIKey)

					r.Get("/users", a.handleListUsers)
					r.Post("/users", a.handleCreateUser)
					r.Route("/users/{userID}", func(r chi.Router) {
						r.Get("/", a.handleGetUser)
						r.Patch("/", a.handleUpdateUser)
						r.Delete("/", a.handleDeleteUser)
						r.Post("/pause", a.handlePauseUser)
						r.Post("/unpause", a.handleUnpauseUser)
						r.Post("/hwid/reset", a.handleResetHWID)
						r.Put("/hwid", a.handleSetHWID)
						r.Get("/sessions", a.handleListUserSessions)
						r.Delete("/sessions", a.handleTerminateUserSessions)
						r.Get("/activity", a.handleListUserActivity)
					})

					r.Get("/blacklist", a.handleListBlacklist)
					r.Post("/blacklist", a.handleAddBlacklist)
					r.Post("/blacklist/{entryID}/deactivate", a.handleDeactivateBlacklist)
					r.Delete("/blacklist/{entryID}", a.handleDeleteBlacklist)

					r.Get("/sessions", a.handleListSessions)
					r.Get("/activity", a.handleListActivity)
					r.Get("/events", a.handleEventStream)

					r.Get("/webhooks", a.handleListWebhooks)
					r.Post("/webhooks", a.handleCreateWebhook)
					r.Get("/webhooks/{webhookID}", a.handleGetWebhook)
					r.Patch("/webhooks/{webhookID}", a.handleUpdateWebhook)
					r.Delete("/webhooks/{webhookID}", a.handleDeleteWebhook)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "phantom-authority",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		a.log.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "phantom-authority",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, listResponse[T]{Items: items})
}
