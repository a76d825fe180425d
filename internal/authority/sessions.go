package authority

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/phantom-auth/authority/internal/ids"
	"github.com/phantom-auth/authority/internal/obs"
)

// SessionMeta is the client context stored with a new session.
type SessionMeta struct {
	HWID      string
	IP        string
	UserAgent string
}

// OpenSession creates a new active session with a fresh random token. Prior
// sessions of the account are kept unless single-session mode is on, in which
// case they are deactivated atomically with the insert.
func (s *Service) OpenSession(ctx context.Context, appID, userID string, meta SessionMeta) (*Session, error) {
	if appID == "" || userID == "" {
		return nil, ErrInvalidInput
	}
	sessions := s.store.Sessions(ctx)
	var lastErr error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := ids.NewToken()
		if err != nil {
			return nil, internal(err)
		}
		now := s.clock()
		sess := &Session{
			ID:            ids.New(),
			ApplicationID: appID,
			AppUserID:     userID,
			Token:         token,
			HWID:          meta.HWID,
			IP:            meta.IP,
			UserAgent:     meta.UserAgent,
			IsActive:      true,
			CreatedAt:     now,
			LastActivity:  now,
		}
		err = sessions.Create(ctx, sess, s.singleSession)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, internal(err)
		}
		lastErr = err
	}
	return nil, internal(fmt.Errorf("session token collision after %d attempts: %w", maxTokenAttempts, lastErr))
}

// Heartbeat bumps last activity. It reports false for unknown or inactive tokens.
func (s *Service) Heartbeat(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	ok, err := s.store.Sessions(ctx).Touch(ctx, token, s.clock())
	if err != nil {
		return false, internal(err)
	}
	return ok, nil
}

// Terminate deactivates a session. Only the call that flips it reports true.
func (s *Service) Terminate(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	sessions := s.store.Sessions(ctx)
	ok, err := sessions.Deactivate(ctx, token)
	if err != nil {
		return false, internal(err)
	}
	if !ok {
		return false, nil
	}
	if sess, err := sessions.FindByToken(ctx, token); err == nil {
		s.adminRecord(ctx, sess.ApplicationID, sess.AppUserID, ActivitySessionTerminated, EventSessionTerminated,
			map[string]string{"session_id": sess.ID})
	}
	return true, nil
}

// SessionByToken returns the session holding token.
func (s *Service) SessionByToken(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNotFound
	}
	return s.store.Sessions(ctx).FindByToken(ctx, token)
}

// ListActiveSessions returns the active sessions of an application.
func (s *Service) ListActiveSessions(ctx context.Context, appID string) ([]*Session, error) {
	return s.store.Sessions(ctx).ListActive(ctx, appID)
}

// ListUserSessions returns every session, active or not, of one account.
func (s *Service) ListUserSessions(ctx context.Context, appID, userID string) ([]*Session, error) {
	return s.store.Sessions(ctx).ListByUser(ctx, appID, userID)
}

// TerminateUserSessions deactivates every active session of one account.
func (s *Service) TerminateUserSessions(ctx context.Context, appID, userID string) (int, error) {
	if _, err := s.store.AppUsers(ctx).Find(ctx, appID, userID); err != nil {
		return 0, err
	}
	n, err := s.store.Sessions(ctx).DeactivateByUser(ctx, appID, userID)
	if err != nil {
		return 0, internal(err)
	}
	if n > 0 {
		s.adminRecord(ctx, appID, userID, ActivitySessionTerminated, EventSessionTerminated,
			map[string]string{"count": strconv.Itoa(n)})
	}
	return n, nil
}

// ReapIdleSessions deactivates sessions with no heartbeat for idle.
func (s *Service) ReapIdleSessions(ctx context.Context, idle time.Duration) (int, error) {
	if idle <= 0 {
		return 0, fmt.Errorf("%w: idle timeout must be positive", ErrInvalidInput)
	}
	n, err := s.store.Sessions(ctx).DeactivateIdle(ctx, s.clock().Add(-idle))
	if err != nil {
		return 0, internal(err)
	}
	if n > 0 {
		obs.AddReaped(n)
		s.log.Info("idle sessions reaped", zap.Int("count", n))
	}
	return n, nil
}
