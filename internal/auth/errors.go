package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrWeakPassword = errors.New("auth: password does not meet the strength policy")
)

// StatusError rejects sign-in for a non-active account. The status is
// deliberately surfaced to the caller for operator diagnosability, an
// explicit tradeoff against enumeration hardening on the login path.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("account is %s", e.Status)
}

func (e *StatusError) Unwrap() error { return ErrUnauthorized }
