package httpapi

import (
	"net/http"

	"github.com/phantom-auth/authority/internal/audit"
	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/authority"
)

type operatorTokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type operatorView struct {
	*auth.Operator
	Permissions []string `json:"permissions"`
}

func (a *API) handleOperatorToken(w http.ResponseWriter, r *http.Request) {
	var req operatorTokenRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	tok, err := a.operators.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "operator.login_failed", map[string]any{
			"email":     req.Email,
			"remote_ip": clientIP(r),
		})
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "operator.login", map[string]any{
		"operator_id": tok.Operator.ID,
		"role":        string(tok.Operator.Role),
	})
	writeJSON(w, http.StatusOK, tok)
}

func (a *API) handleOperatorMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	op := principal.Operator
	writeJSON(w, http.StatusOK, operatorView{Operator: &op, Permissions: auth.PermissionsFor(op.Role)})
}

func (a *API) handleListOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := a.operators.Operators(r.Context())
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeList(w, ops)
}

// --- applications ---

type createApplicationRequest struct {
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description" validate:"max=1024"`
}

type updateApplicationRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=128"`
	Description *string `json:"description" validate:"omitempty,max=1024"`
	IsActive    *bool   `json:"is_active"`
}

func (a *API) handleListApplications(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	owner := principal.Operator.ID
	if principal.HasPermission(auth.PermViewAllData) && r.URL.Query().Get("scope") != "own" {
		owner = ""
	}
	apps, err := a.authority.ListApplications(r.Context(), owner)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeList(w, apps)
}

func (a *API) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var req createApplicationRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	app, err := a.authority.CreateApplication(r.Context(), authority.NewApplication{
		OwnerID:     principal.Operator.ID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "application.created", map[string]any{
		"application_id": app.ID,
		"name":           app.Name,
	})
	writeJSON(w, http.StatusCreated, app)
}

func (a *API) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, applicationFromContext(r.Context()))
}

func (a *API) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	app := applicationFromContext(r.Context())
	var req updateApplicationRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	updated, err := a.authority.UpdateApplication(r.Context(), app.ID, authority.ApplicationUpdate{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	app := applicationFromContext(r.Context())
	if !principal.CanDeleteApplication(app.OwnerID) {
		a.handleAuthError(w, r, auth.ErrForbidden)
		return
	}
	if err := a.authority.DeleteApplication(r.Context(), app.ID); err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "application.deleted", map[string]any{"application_id": app.ID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRotateAPIKey(w http.ResponseWriter, r *http.Request) {
	app := applicationFromContext(r.Context())
	rotated, err := a.authority.RotateAPIKey(r.Context(), app.ID)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "application.key_rotated", map[string]any{"application_id": app.ID})
	writeJSON(w, http.StatusOK, rotated)
}
