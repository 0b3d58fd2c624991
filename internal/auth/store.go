package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations the auth core needs. The
// employee schema is owned elsewhere; this interface covers only the fields
// the core reads and writes.
//
// The Consume* operations must be atomic single-statement updates guarded by
// the current hash value, so that two concurrent verifications of the same
// OTP or reset token cannot both succeed.
type Store interface {
	// FindIdentity loads an identity by id. Returns ErrNotFound when absent.
	FindIdentity(ctx context.Context, id string) (*Identity, error)

	// FindIdentityByEmail matches case-insensitively across all email
	// columns. Returns ErrNotFound when absent.
	FindIdentityByEmail(ctx context.Context, email string) (*Identity, error)

	// RolesForIdentity resolves roles through the access-profile
	// association. An identity without a profile yields an empty set, not an
	// error.
	RolesForIdentity(ctx context.Context, id string) ([]string, error)

	// SetResetOTP stores fresh OTP material, replacing any reset in progress.
	SetResetOTP(ctx context.Context, id, otpHash string, expiresAt time.Time) error

	// ClearResetOTP drops OTP material, e.g. when an expired code is
	// presented.
	ClearResetOTP(ctx context.Context, id string) error

	// ConsumeResetOTP atomically clears the OTP fields and installs the
	// reset-token hash, guarded by the OTP hash still matching. Returns
	// false when another request consumed the OTP first.
	ConsumeResetOTP(ctx context.Context, id, otpHash, tokenHash string, tokenExpiresAt time.Time) (bool, error)

	// FindIdentityByResetTokenHash looks up a non-expired reset token.
	// Returns ErrNotFound when no live token matches.
	FindIdentityByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*Identity, error)

	// ConsumeResetToken atomically installs the new password hash and clears
	// the reset-token fields, guarded by the token hash matching and being
	// unexpired. Returns false when the token was already spent or expired.
	ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) (bool, error)

	// UpdatePassword replaces the stored password hash (authenticated
	// change path).
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// AppendPasswordHistory appends an immutable history row.
	AppendPasswordHistory(ctx context.Context, rec *PasswordHistory) error

	// LatestPasswordHistory returns the most recent history row for the
	// employee, or ErrNotFound when none exists.
	LatestPasswordHistory(ctx context.Context, employeeID string) (*PasswordHistory, error)
}
