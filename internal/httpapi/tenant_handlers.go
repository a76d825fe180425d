package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/phantom-auth/authority/internal/authority"
)

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
)

// --- users ---

type createUserRequest struct {
	Username  string     `json:"username" validate:"required,max=64"`
	Password  string     `json:"password" validate:"required"`
	Email     string     `json:"email" validate:"omitempty,email"`
	HWID      string     `json:"hwid" validate:"max=256"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type updateUserRequest struct {
	Username    *string    `json:"username" validate:"omitempty,min=1,max=64"`
	Email       *string    `json:"email" validate:"omitempty,email"`
	Password    *string    `json:"password" validate:"omitempty,min=1"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearEmail  bool       `json:"clear_email"`
	ClearExpiry bool       `json:"clear_expiry"`
}

type setHWIDRequest struct {
	HWID string `json:"hwid" validate:"required,max=256"`
}

func appID(r *http.Request) string {
	return applicationFromContext(r.Context()).ID
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.authority.ListUsers(r.Context(), appID(r))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeList(w, users)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	u, err := a.authority.CreateUser(r.Context(), appID(r), authority.NewAppUser{
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		HWID:      req.HWID,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.authority.GetUser(r.Context(), appID(r), chi.URLParam(r, "userID"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	u, err := a.authority.UpdateUser(r.Context(), appID(r), chi.URLParam(r, "userID"), authority.AppUserUpdate{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		ExpiresAt:   req.ExpiresAt,
		ClearEmail:  req.ClearEmail,
		ClearExpiry: req.ClearExpiry,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.authority.DeleteUser(r.Context(), appID(r), chi.URLParam(r, "userID")); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// userAction adapts a (ctx, app, user) mutation into a handler returning the account.
func (a *API) userAction(fn func(*http.Request, string, string) (*authority.AppUser, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := fn(r, appID(r), chi.URLParam(r, "userID"))
		if err != nil {
			a.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func (a *API) handlePauseUser(w http.ResponseWriter, r *http.Request) {
	a.userAction(func(r *http.Request, app, user string) (*authority.AppUser, error) {
		return a.authority.PauseUser(r.Context(), app, user)
	})(w, r)
}

func (a *API) handleUnpauseUser(w http.ResponseWriter, r *http.Request) {
	a.userAction(func(r *http.Request, app, user string) (*authority.AppUser, error) {
		return a.authority.UnpauseUser(r.Context(), app, user)
	})(w, r)
}

func (a *API) handleResetHWID(w http.ResponseWriter, r *http.Request) {
	a.userAction(func(r *http.Request, app, user string) (*authority.AppUser, error) {
		return a.authority.ResetBinding(r.Context(), app, user)
	})(w, r)
}

func (a *API) handleSetHWID(w http.ResponseWriter, r *http.Request) {
	var req setHWIDRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	a.userAction(func(r *http.Request, app, user string) (*authority.AppUser, error) {
		return a.authority.ForceSetBinding(r.Context(), app, user, req.HWID)
	})(w, r)
}

func (a *API) handleListUserSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.authority.ListUserSessions(r.Context(), appID(r), chi.URLParam(r, "userID"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeList(w, sessions)
}

func (a *API) handleTerminateUserSessions(w http.ResponseWriter, r *http.Request) {
	n, err := a.authority.TerminateUserSessions(r.Context(), appID(r), chi.URLParam(r, "userID"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"terminated": n})
}

func (a *API) handleListUserActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), defaultActivityLimit, 1, maxActivityLimit)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	logs, err := a.authority.ListUserActivity(r.Context(), appID(r), chi.URLParam(r, "userID"), limit)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeList(w, logs)
}

// --- deny-list ---

type addBlacklistRequest struct {
	Type   string `json:"type" validate:"required,oneof=hwid ip username email"`
	Value  string `json:"value" validate:"required,max=256"`
	Reason string `json:"reason" validate:"max=512"`
}

func (a *API) handleListBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := a.authority.ListBlacklist(r.Context(), appID(r))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeList(w, entries)
}

func (a *API) handleAddBlacklist(w http.ResponseWriter, r *http.Request) {
	var req addBlacklistRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	e, err := a.authority.AddBlacklistEntry(r.Context(), appID(r), authority.NewBlacklistEntry{
		Type:   authority.BlacklistType(req.Type),
		Value:  req.Value,
		Reason: req.Reason,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) handleDeactivateBlacklist(w http.ResponseWriter, r *http.Request) {
	changed, err := a.authority.RemoveBlacklistEntry(r.Context(), appID(r), chi.URLParam(r, "entryID"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deactivated": changed})
}

func (a *API) handleDeleteBlacklist(w http.ResponseWriter, r *http.Request) {
	if err := a.authority.DeleteBlacklistEntry(r.Context(), appID(r), chi.URLParam(r, "entryID")); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- sessions & activity ---

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.authority.ListActiveSessions(r.Context(), appID(r))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeList(w, sessions)
}

func (a *API) handleListActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), defaultActivityLimit, 1, maxActivityLimit)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	logs, err := a.authority.ListActivity(r.Context(), appID(r), limit)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeList(w, logs)
}

// --- webhooks ---

type createWebhookRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Secret string   `json:"secret" validate:"max=256"`
	Events []string `json:"events" validate:"required,min=1,dive,required"`
}

type updateWebhookRequest struct {
	URL      *string  `json:"url" validate:"omitempty,url"`
	Secret   *string  `json:"secret" validate:"omitempty,min=1,max=256"`
	Events   []string `json:"events" validate:"omitempty,min=1,dive,required"`
	IsActive *bool    `json:"is_active"`
}

// createdWebhook exposes the signing secret once, on creation.
type createdWebhook struct {
	*authority.Webhook
	Secret string `json:"secret"`
}

func (a *API) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := a.authority.ListWebhooks(r.Context(), appID(r))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeList(w, hooks)
}

func (a *API) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	hook, err := a.authority.CreateWebhook(r.Context(), appID(r), authority.NewWebhook{
		URL:    req.URL,
		Secret: req.Secret,
		Events: req.Events,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdWebhook{Webhook: hook, Secret: hook.Secret})
}

func (a *API) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := a.authority.GetWebhook(r.Context(), appID(r), chi.URLParam(r, "webhookID"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (a *API) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	var req updateWebhookRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	hook, err := a.authority.UpdateWebhook(r.Context(), appID(r), chi.URLParam(r, "webhookID"), authority.WebhookUpdate{
		URL:      req.URL,
		Secret:   req.Secret,
		Events:   req.Events,
		IsActive: req.IsActive,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (a *API) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := a.authority.DeleteWebhook(r.Context(), appID(r), chi.URLParam(r, "webhookID")); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
