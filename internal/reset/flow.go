package reset

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"hrdesk.org/internal/auth"
	"hrdesk.org/internal/ids"
	"hrdesk.org/internal/mailer"
)

// GenericRequestMessage is returned by the request step no matter what
// happened: unknown email, dispatch failure, success. Callers cannot use it
// to probe for account existence.
const GenericRequestMessage = "If an account exists for that email, a one-time code has been sent."

var (
	ErrInvalidOTPOrEmail = errors.New("Invalid OTP or email")
	ErrInvalidOTP        = errors.New("Invalid OTP")
	ErrOTPExpired        = errors.New("OTP has expired")
	ErrInvalidResetToken = errors.New("Invalid or expired reset token")
	ErrPasswordMismatch  = errors.New("passwords do not match")
	ErrSamePassword      = errors.New("new password must differ from the current password")
)

// Flow drives the OTP-based password-reset state machine:
// NoResetInProgress -> OtpIssued -> ResetTokenIssued -> PasswordChanged.
// Single-use transitions rely on the store's conditional consume updates,
// not on in-process locking.
type Flow struct {
	store    auth.Store
	mail     mailer.Sender
	log      *zap.Logger
	otpTTL   time.Duration
	tokenTTL time.Duration
	cutover  time.Time
	now      func() time.Time
	sleep    func(ctx context.Context) error
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithOTPTTL overrides the one-time-code lifetime.
func WithOTPTTL(ttl time.Duration) FlowOption {
	return func(f *Flow) {
		if ttl > 0 {
			f.otpTTL = ttl
		}
	}
}

// WithResetTokenTTL overrides the reset-token lifetime.
func WithResetTokenTTL(ttl time.Duration) FlowOption {
	return func(f *Flow) {
		if ttl > 0 {
			f.tokenTTL = ttl
		}
	}
}

// WithExpiryCutover sets the date before which password-expiry enforcement
// is suppressed (phased rollout).
func WithExpiryCutover(ts time.Time) FlowOption {
	return func(f *Flow) { f.cutover = ts }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) FlowOption {
	return func(f *Flow) {
		if fn != nil {
			f.now = fn
		}
	}
}

// WithSleep overrides the enumeration-hardening delay (tests pass a no-op).
func WithSleep(fn func(ctx context.Context) error) FlowOption {
	return func(f *Flow) {
		if fn != nil {
			f.sleep = fn
		}
	}
}

// WithLogger sets the logger used for swallowed mail failures.
func WithLogger(log *zap.Logger) FlowOption {
	return func(f *Flow) {
		if log != nil {
			f.log = log
		}
	}
}

// NewFlow constructs a Flow.
func NewFlow(store auth.Store, mail mailer.Sender, opts ...FlowOption) (*Flow, error) {
	if store == nil {
		return nil, errors.New("reset: store is required")
	}
	if mail == nil {
		return nil, errors.New("reset: mail sender is required")
	}
	f := &Flow{
		store:    store,
		mail:     mail,
		log:      zap.NewNop(),
		otpTTL:   10 * time.Minute,
		tokenTTL: time.Hour,
		now:      time.Now,
		sleep:    randomDelay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Request starts a reset (NoResetInProgress -> OtpIssued). The reply is
// always GenericRequestMessage; only unexpected store failures propagate.
// Mail-dispatch failures are logged and swallowed so a caller cannot tell
// "email failed" from "no such account".
func (f *Flow) Request(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	identity, err := f.store.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			// Burn roughly the time the real path takes.
			return f.sleep(ctx)
		}
		return err
	}

	otp, err := NewOTP()
	if err != nil {
		return err
	}
	otpHash, err := auth.HashPassword(otp)
	if err != nil {
		return err
	}
	if err := f.store.SetResetOTP(ctx, identity.ID, otpHash, f.now().Add(f.otpTTL)); err != nil {
		return err
	}

	to := identity.PrimaryEmail()
	body := fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.",
		otp, int(f.otpTTL.Minutes()))
	if err := f.mail.Send(ctx, to, "Your password reset code", body); err != nil {
		f.log.Warn("reset otp mail dispatch failed",
			zap.String("employee_id", identity.ID),
			zap.Error(err),
		)
	}
	return nil
}

// VerifyOTP exchanges a valid one-time code for a single-use reset token
// (OtpIssued -> ResetTokenIssued). The plaintext token is returned exactly
// once; only its hash is stored.
func (f *Flow) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	identity, err := f.store.FindIdentityByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return "", ErrInvalidOTPOrEmail
		}
		return "", err
	}
	if identity.ResetOTPHash == "" {
		return "", ErrInvalidOTPOrEmail
	}
	now := f.now()
	if !now.Before(identity.ResetOTPExpiresAt) {
		// Clear stale material so the same code cannot be retried later.
		if err := f.store.ClearResetOTP(ctx, identity.ID); err != nil {
			return "", err
		}
		return "", ErrOTPExpired
	}
	if err := validateOTPFormat(otp); err != nil {
		return "", ErrInvalidOTP
	}
	if err := auth.VerifyPassword(identity.ResetOTPHash, otp); err != nil {
		return "", ErrInvalidOTP
	}

	token, err := NewResetToken()
	if err != nil {
		return "", err
	}
	consumed, err := f.store.ConsumeResetOTP(ctx, identity.ID, identity.ResetOTPHash,
		HashResetToken(token), now.Add(f.tokenTTL))
	if err != nil {
		return "", err
	}
	if !consumed {
		// A concurrent verification won the exchange.
		return "", ErrInvalidOTP
	}
	return token, nil
}

// VerifyToken reports whether a reset token is currently valid and, when it
// is, the email it belongs to. Read-only: no state change.
func (f *Flow) VerifyToken(ctx context.Context, token string) (bool, string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, "", nil
	}
	identity, err := f.store.FindIdentityByResetTokenHash(ctx, HashResetToken(token), f.now())
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return false, "", nil
		}
		return false, "", err
	}
	return true, identity.PrimaryEmail(), nil
}

// ResetPassword completes the flow (ResetTokenIssued -> PasswordChanged):
// validates the new password, spends the token, records history and fires a
// best-effort confirmation mail.
func (f *Flow) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if err := auth.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	now := f.now()
	tokenHash := HashResetToken(strings.TrimSpace(token))
	identity, err := f.store.FindIdentityByResetTokenHash(ctx, tokenHash, now)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if identity.PasswordHash != "" && auth.VerifyPassword(identity.PasswordHash, newPassword) == nil {
		return ErrSamePassword
	}

	newHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	consumed, err := f.store.ConsumeResetToken(ctx, identity.ID, tokenHash, newHash, now)
	if err != nil {
		return err
	}
	if !consumed {
		return ErrInvalidResetToken
	}

	if err := f.appendHistory(ctx, identity, now, auth.ChangeReset); err != nil {
		return err
	}
	f.sendConfirmation(ctx, identity)
	return nil
}

// ChangePassword is the authenticated change path: same strength,
// confirmation and history rules, but gated on the caller's current
// password instead of a reset token.
func (f *Flow) ChangePassword(ctx context.Context, employeeID, currentPassword, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if err := auth.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	identity, err := f.store.FindIdentity(ctx, employeeID)
	if err != nil {
		return err
	}
	if identity.PasswordHash == "" {
		return fmt.Errorf("%w: no password on file", auth.ErrUnauthorized)
	}
	if err := auth.VerifyPassword(identity.PasswordHash, currentPassword); err != nil {
		return fmt.Errorf("%w: current password is incorrect", auth.ErrUnauthorized)
	}
	if auth.VerifyPassword(identity.PasswordHash, newPassword) == nil {
		return ErrSamePassword
	}

	newHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := f.store.UpdatePassword(ctx, identity.ID, newHash); err != nil {
		return err
	}
	if err := f.appendHistory(ctx, identity, f.now(), auth.ChangeManual); err != nil {
		return err
	}
	f.sendConfirmation(ctx, identity)
	return nil
}

// ExpiryStatus is the result of a password-expiry check.
type ExpiryStatus struct {
	IsExpired  bool      `json:"isExpired"`
	HasHistory bool      `json:"hasHistory"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
}

// CheckExpiry evaluates the most recent password-history row. No history
// counts as expired (forces initial password setup). Before the cutover
// date enforcement is suppressed entirely.
func (f *Flow) CheckExpiry(ctx context.Context, employeeID string) (ExpiryStatus, error) {
	now := f.now()
	if !f.cutover.IsZero() && now.Before(f.cutover) {
		return ExpiryStatus{IsExpired: false}, nil
	}
	latest, err := f.store.LatestPasswordHistory(ctx, employeeID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return ExpiryStatus{IsExpired: true}, nil
		}
		return ExpiryStatus{}, err
	}
	return ExpiryStatus{
		IsExpired:  !now.Before(latest.ExpiresAt),
		HasHistory: true,
		ExpiresAt:  latest.ExpiresAt,
	}, nil
}

func (f *Flow) appendHistory(ctx context.Context, identity *auth.Identity, at time.Time, change auth.ChangeType) error {
	return f.store.AppendPasswordHistory(ctx, &auth.PasswordHistory{
		ID:         ids.New(),
		EmployeeID: identity.ID,
		Email:      identity.PrimaryEmail(),
		ChangedAt:  at,
		ExpiresAt:  at.Add(auth.PasswordLifetime),
		ChangeType: change,
	})
}

func (f *Flow) sendConfirmation(ctx context.Context, identity *auth.Identity) {
	body := "Your password was changed. If this was not you, contact your HR administrator immediately."
	if err := f.mail.Send(ctx, identity.PrimaryEmail(), "Your password was changed", body); err != nil {
		f.log.Warn("password change confirmation mail failed",
			zap.String("employee_id", identity.ID),
			zap.Error(err),
		)
	}
}

// randomDelay sleeps 20-40ms so the unknown-email path is not measurably
// faster than OTP generation and dispatch.
func randomDelay(ctx context.Context) error {
	n, err := rand.Int(rand.Reader, big.NewInt(21))
	if err != nil {
		return err
	}
	delay := time.Duration(20+n.Int64()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
