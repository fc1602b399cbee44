package auth

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"

	CompanyStatusActive    = "active"
	CompanyStatusSuspended = "suspended"
)

// Identity represents a user account operating within a company. The record
// is owned by the identity directory; this subsystem only references it.
type Identity struct {
	ID           string
	CompanyID    string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Company is the tenant boundary. Only its status matters here.
type Company struct {
	ID        string
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshToken is a persisted, revocable credential. The stored row is the
// authoritative source of validity; the opaque token string the client holds
// is never persisted, only its hash.
type RefreshToken struct {
	ID          string
	IdentityID  string
	CompanyID   string
	TokenHash   string
	Fingerprint string
	UserAgent   string
	IP          string
	ExpiresAt   time.Time
	Revoked     bool
	Rotated     bool
	ParentID    string
	CreatedAt   time.Time
}

// Valid reports whether the token is still usable at the given instant.
func (t *RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && !t.Rotated && now.Before(t.ExpiresAt)
}

// LoginAttempt is one row of the append-only authentication log. Rows are
// never mutated or deleted by the authentication path; they serve as both
// audit trail and lockout-counter input.
type LoginAttempt struct {
	ID          string
	Email       string
	Success     bool
	IP          string
	UserAgent   string
	Reason      string
	AttemptedAt time.Time
}

// Code purposes. Each (email, purpose) pair holds at most one live code.
const (
	PurposeEmailVerify   = "email_verify"
	PurposePasswordReset = "password_reset"
)

// VerificationCode is a time-bound single-use code for email verification or
// password reset.
type VerificationCode struct {
	ID        string
	Email     string
	Purpose   string
	Code      string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// ClientMeta carries request metadata recorded alongside attempts and tokens.
// The derived fingerprint is diagnostic only, never an access decision input.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// IdentitySummary is the caller-facing view of an authenticated identity.
type IdentitySummary struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      Role   `json:"role"`
}

// Session is the result of a successful authenticate or refresh call.
type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Identity     IdentitySummary `json:"identity"`
}
