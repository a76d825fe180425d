package httpapi

import (
	"errors"
	"net/http"

	"github.com/phantom-auth/authority/internal/authority"
)

type clientLoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
	HWID     string `json:"hwid" validate:"max=256"`
}

type clientLoginResponse struct {
	SessionToken string                  `json:"session_token"`
	Session      *authority.Session      `json:"session"`
	User         *authority.AppUser      `json:"user"`
	Binding      authority.BindingResult `json:"binding"`
}

type sessionTokenRequest struct {
	SessionToken string `json:"session_token" validate:"required"`
}

func (a *API) handleClientLogin(w http.ResponseWriter, r *http.Request) {
	app := applicationFromContext(r.Context())
	var req clientLoginRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	res, err := a.authority.Authenticate(r.Context(), authority.LoginRequest{
		ApplicationID: app.ID,
		Username:      req.Username,
		Password:      req.Password,
		HWID:          req.HWID,
		IP:            clientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clientLoginResponse{
		SessionToken: res.Session.Token,
		Session:      res.Session,
		User:         res.User,
		Binding:      res.Binding,
	})
}

// clientSession resolves the token to a session of the calling application.
// Sessions of other tenants are reported as absent.
func (a *API) clientSession(w http.ResponseWriter, r *http.Request) (*authority.Session, string, bool) {
	app := applicationFromContext(r.Context())
	var req sessionTokenRequest
	if !a.decodeValid(w, r, &req) {
		return nil, "", false
	}
	sess, err := a.authority.SessionByToken(r.Context(), req.SessionToken)
	switch {
	case errors.Is(err, authority.ErrNotFound):
		writeError(w, r, http.StatusUnauthorized, "invalid_session", "session is not active")
		return nil, "", false
	case err != nil:
		a.handleError(w, r, err)
		return nil, "", false
	}
	if sess.ApplicationID != app.ID || !sess.IsActive {
		writeError(w, r, http.StatusUnauthorized, "invalid_session", "session is not active")
		return nil, "", false
	}
	return sess, req.SessionToken, true
}

func (a *API) handleClientHeartbeat(w http.ResponseWriter, r *http.Request) {
	sess, token, ok := a.clientSession(w, r)
	if !ok {
		return
	}
	alive, err := a.authority.Heartbeat(r.Context(), token)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	if !alive {
		writeError(w, r, http.StatusUnauthorized, "invalid_session", "session is not active")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "session_id": sess.ID})
}

func (a *API) handleClientLogout(w http.ResponseWriter, r *http.Request) {
	sess, token, ok := a.clientSession(w, r)
	if !ok {
		return
	}
	if _, err := a.authority.Terminate(r.Context(), token); err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "terminated", "session_id": sess.ID})
}
