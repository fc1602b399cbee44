package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrEmailTaken   = errors.New("auth: email already registered")

	// ErrInvalidCredentials covers unknown email and wrong password alike so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrAccountLocked    = errors.New("auth: account temporarily locked")
	ErrAccountNotActive = errors.New("auth: account is not active")
	ErrCompanySuspended = errors.New("auth: company is suspended")

	// ErrInvalidToken collapses malformed, bad-signature, expired, revoked and
	// rotated token failures into one externally visible message.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrCodeInvalid = errors.New("auth: code not found")
	ErrCodeExpired = errors.New("auth: code expired")
	ErrCodeUsed    = errors.New("auth: code already used")

	ErrUnauthorized     = errors.New("auth: unauthorized")
	ErrEscalationDenied = errors.New("auth: privilege escalation denied")
	ErrStoreUnavailable = errors.New("auth: store unavailable")
)

// LockedError carries the advisory retry window alongside the lockout denial.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("auth: account temporarily locked, retry after %s", e.RetryAfter)
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// EscalationError reports a denied role change with enough detail for audit.
type EscalationError struct {
	ActorRole  Role
	TargetRole Role
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("auth: privilege escalation denied (actor %s, target %s)", e.ActorRole, e.TargetRole)
}

func (e *EscalationError) Is(target error) bool { return target == ErrEscalationDenied }

// PolicyError lists every violated password rule. Unlike the credential
// errors this one is safe to expose verbatim.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return "auth: password policy violated: " + strings.Join(e.Violations, "; ")
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
