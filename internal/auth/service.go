package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service performs credential verification and session issuance.
type Service struct {
	store  Store
	tokens *Issuer
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, tokens *Issuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("auth: store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("auth: token issuer is required")
	}
	svc := &Service{store: store, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Session is a successful sign-in result: the signed token plus the
// public-safe identity payload embedded in it.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Claims    *Claims
}

// SignIn verifies credentials and mints a session token. It is read-only
// against the store.
//
// Error contract: ErrNotFound when no identity matches the email (the login
// path deliberately distinguishes this case); ErrUnauthorized for a
// non-active account — with the status named in the message for operator
// diagnosability — and for a missing or mismatching password.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, ErrNotFound
	}
	identity, err := s.store.FindIdentityByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if identity.Status != "" && identity.Status != StatusActive {
		return nil, &StatusError{Status: identity.Status}
	}
	if password == "" || identity.PasswordHash == "" {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}

	roles, err := s.store.RolesForIdentity(ctx, identity.ID)
	if err != nil {
		roles = []string{}
	}
	if roles == nil {
		roles = []string{}
	}

	token, claims, err := s.tokens.Issue(identity.ID, identity.PrimaryEmail(), roles)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, Claims: claims}, nil
}

// Verify exposes token verification for the session gate.
func (s *Service) Verify(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

// TokenTTL reports the configured session lifetime, used for cookie MaxAge.
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.TTL()
}
