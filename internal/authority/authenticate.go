package authority

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/phantom-auth/authority/internal/obs"
)

// LoginRequest is one authentication attempt against an application.
type LoginRequest struct {
	ApplicationID string
	Username      string
	Password      string
	HWID          string
	IP            string
	UserAgent     string
}

// LoginResult is returned on success.
type LoginResult struct {
	Session *Session
	User    *AppUser
	Binding BindingResult
}

// Authenticate runs the login decision: account lookup, deny-list, lifecycle,
// credential check, hardware binding, then session creation as the final
// all-or-nothing step. Exactly one activity entry is written per call that
// names an existing application; attempts against unknown applications are
// only logged.
//
// Returned errors are the sentinel kinds only; internal causes are logged.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (LoginResult, error) {
	req.ApplicationID = strings.TrimSpace(req.ApplicationID)
	req.Username = strings.TrimSpace(req.Username)
	req.HWID = strings.TrimSpace(req.HWID)
	req.IP = strings.TrimSpace(req.IP)

	entry := &ActivityLog{
		ApplicationID: req.ApplicationID,
		IP:            req.IP,
		HWID:          req.HWID,
		Metadata:      map[string]string{"username": req.Username},
	}
	if req.UserAgent != "" {
		entry.Metadata["user_agent"] = req.UserAgent
	}

	res, err := s.authenticate(ctx, req, entry)
	kind := KindOf(err)
	if err == nil {
		entry.Event = ActivityLoginSuccess
		entry.Success = true
		entry.Metadata["binding"] = res.Binding.String()
		entry.Metadata["session_id"] = res.Session.ID
	} else {
		entry.Event = "login." + string(kind)
		entry.Detail = string(kind)
	}
	if entry.ApplicationID == "" {
		// no tenant to hold the activity row or receive webhooks
		s.log.Warn("login for unknown application",
			obs.AppID(req.ApplicationID), zap.String("username", req.Username), zap.String("ip", req.IP))
	} else {
		s.record(ctx, entry)
		s.notifyLogin(ctx, req, entry, res, kind)
	}

	if err != nil {
		obs.ObserveLogin(string(kind))
		if kind == KindInternal {
			s.log.Error("authenticate failed",
				obs.AppID(req.ApplicationID), zap.String("username", req.Username), zap.Error(err))
			return LoginResult{}, ErrInternal
		}
		if s.concealReasons && kind != KindInvalidCredentials {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	obs.ObserveLogin("success")
	return res, nil
}

func (s *Service) authenticate(ctx context.Context, req LoginRequest, entry *ActivityLog) (LoginResult, error) {
	if req.ApplicationID == "" || req.Username == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	users := s.store.AppUsers(ctx)
	u, err := users.FindByUsername(ctx, req.ApplicationID, req.Username)
	if errors.Is(err, ErrNotFound) {
		if _, aerr := s.store.Applications(ctx).Find(ctx, req.ApplicationID); errors.Is(aerr, ErrNotFound) {
			entry.ApplicationID = ""
		}
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, internal(err)
	}
	userID := u.ID
	entry.AppUserID = &userID

	blocked, err := s.firstBlocked(ctx, req.ApplicationID, loginProbes(u, req))
	if err != nil {
		return LoginResult{}, err
	}
	if blocked != nil {
		entry.Metadata["blacklist_type"] = string(blocked.Type)
		entry.Metadata["blacklist_entry_id"] = blocked.ID
		return LoginResult{}, ErrAccountBlocked
	}

	if err := CheckEligible(u, s.clock()); err != nil {
		return LoginResult{}, err
	}

	if !s.hasher.Verify(req.Password, u.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	binding, err := s.ResolveBinding(ctx, u, req.HWID)
	if err != nil {
		return LoginResult{}, err
	}
	if binding == BindingMismatch {
		return LoginResult{}, ErrHWIDMismatch
	}

	// An abandoned attempt must not leave a session behind.
	if err := ctx.Err(); err != nil {
		return LoginResult{}, internal(err)
	}
	sess, err := s.OpenSession(ctx, u.ApplicationID, u.ID, SessionMeta{
		HWID:      req.HWID,
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		return LoginResult{}, internal(err)
	}

	at := sess.CreatedAt
	if err := users.TouchLogin(context.WithoutCancel(ctx), u.ApplicationID, u.ID, at); err != nil {
		s.log.Warn("touch last login failed", obs.AppID(u.ApplicationID), obs.UserID(u.ID), zap.Error(err))
	} else {
		u.LastLoginAt = &at
	}
	return LoginResult{Session: sess, User: u, Binding: binding}, nil
}

func (s *Service) notifyLogin(ctx context.Context, req LoginRequest, entry *ActivityLog, res LoginResult, kind ErrorKind) {
	if req.ApplicationID == "" {
		return
	}
	userID := ""
	if entry.AppUserID != nil {
		userID = *entry.AppUserID
	}
	if kind == KindNone {
		s.emit(ctx, EventLoginSuccess, req.ApplicationID, userID, map[string]any{
			"username":   res.User.Username,
			"session_id": res.Session.ID,
			"hwid":       req.HWID,
			"ip":         req.IP,
			"binding":    res.Binding.String(),
		})
		return
	}
	s.emit(ctx, EventLoginFailure, req.ApplicationID, userID, map[string]any{
		"username": req.Username,
		"reason":   string(kind),
		"hwid":     req.HWID,
		"ip":       req.IP,
	})
}
