package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phantom-auth/authority/internal/vault"
)

// Service authenticates operators and issues their bearer tokens.
type Service struct {
	store  OperatorStore
	hasher vault.Hasher
	tokens *Issuer
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store OperatorStore, hasher vault.Hasher, tokens *Issuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: operator store is required")
	}
	if hasher == nil {
		return nil, errors.New("auth: hasher is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	svc := &Service{store: store, hasher: hasher, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Token is an issued operator bearer token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Operator    *Operator `json:"operator"`
}

// Login verifies the operator's password and issues a bearer token.
// Unknown emails, inactive operators and wrong passwords all yield ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	op, err := s.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ErrUnauthorized
	case err != nil:
		return nil, fmt.Errorf("find operator: %w", err)
	}
	if !op.IsActive || !s.hasher.Verify(password, op.PasswordHash) {
		return nil, ErrUnauthorized
	}
	return s.IssueFor(op)
}

// IssueFor signs a token for op without checking its password.
func (s *Service) IssueFor(op *Operator) (*Token, error) {
	signed, exp, err := s.tokens.Issue(op)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: exp, Operator: op}, nil
}

// Authenticate resolves a bearer token into a principal. The operator's role is
// read from the store so demotions apply to tokens already issued.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, err
	}
	op, err := s.store.Find(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrNotFound):
		return Principal{}, ErrUnauthorized
	case err != nil:
		return Principal{}, fmt.Errorf("find operator: %w", err)
	}
	if !op.IsActive {
		return Principal{}, ErrUnauthorized
	}
	return NewPrincipal(*op), nil
}

// Operators lists every operator.
func (s *Service) Operators(ctx context.Context) ([]*Operator, error) {
	return s.store.List(ctx)
}
