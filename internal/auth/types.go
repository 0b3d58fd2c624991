package auth

import "time"

// Status enumerates employee account states. Only Active accounts may
// authenticate.
type Status string

const (
	StatusActive     Status = "Active"
	StatusInactive   Status = "Inactive"
	StatusOnLeave    Status = "OnLeave"
	StatusSuspended  Status = "Suspended"
	StatusTerminated Status = "Terminated"
	StatusRetired    Status = "Retired"
	StatusProbation  Status = "Probation"
)

// Identity is the auth-relevant subset of the employee record. The wider
// employee schema (contracts, payroll, appraisals) belongs to other services;
// this core only reads and writes the fields below.
type Identity struct {
	ID            string
	WorkEmail     string
	PersonalEmail string

	// PasswordHash is empty until the employee sets a first password.
	PasswordHash string
	Status       Status

	// AccessProfileID links to the grouping entity whose role list is merged
	// into issued tokens. Empty means no roles.
	AccessProfileID string

	// Transient one-time-code material. Set by the reset-request step,
	// cleared on successful verification or expiry.
	ResetOTPHash      string
	ResetOTPExpiresAt time.Time

	// Transient single-use reset-token material. Set only after OTP
	// verification succeeds; mutually exclusive with the OTP fields.
	ResetTokenHash      string
	ResetTokenExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PrimaryEmail returns the address reset mail is sent to.
func (i *Identity) PrimaryEmail() string {
	if i.WorkEmail != "" {
		return i.WorkEmail
	}
	return i.PersonalEmail
}

// ChangeType classifies password history entries.
type ChangeType string

const (
	ChangeInitial ChangeType = "initial"
	ChangeManual  ChangeType = "manual"
	ChangeReset   ChangeType = "reset"
	ChangeForced  ChangeType = "forced"
)

// PasswordHistory is an append-only record of a password change. Exactly one
// most-recent row per employee determines expiry status; rows are never
// mutated.
type PasswordHistory struct {
	ID         string
	EmployeeID string
	Email      string
	ChangedAt  time.Time
	ExpiresAt  time.Time
	ChangeType ChangeType
}

// PasswordLifetime is how long a password stays valid after a change.
const PasswordLifetime = 90 * 24 * time.Hour
