package auth

import (
	"context"
	"time"
)

// Store aggregates the persistence surfaces the auth subsystem depends on.
type Store interface {
	Identities() IdentityDirectory
	Companies() CompanyDirectory
	RefreshTokens() RefreshTokenStore
	LoginAttempts() LoginAttemptStore
	Codes() CodeStore
}

// IdentityDirectory is the external account directory. Records are referenced,
// not owned, by this subsystem.
type IdentityDirectory interface {
	Create(ctx context.Context, identity *Identity) error
	FindByID(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateRole(ctx context.Context, id string, role Role) error
	CountByCompany(ctx context.Context, companyID string) (int, error)
}

// CompanyDirectory resolves tenant status.
type CompanyDirectory interface {
	FindByID(ctx context.Context, id string) (*Company, error)
}

// RefreshTokenStore manages persisted refresh token rows. Revocation of all
// tokens for one identity must be a single bulk update so no concurrently
// issued session escapes it.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRotated(ctx context.Context, id string) error
	RevokeAllForIdentity(ctx context.Context, identityID string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LoginAttemptStore is the append-only authentication log.
type LoginAttemptStore interface {
	Append(ctx context.Context, attempt *LoginAttempt) error
	CountFailedSince(ctx context.Context, email string, since time.Time) (int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CodeStore holds verification and reset codes, at most one live row per
// (email, purpose).
type CodeStore interface {
	// Replace retires any prior live code for the same email and purpose and
	// stores the new one. Last writer wins under concurrent resends.
	Replace(ctx context.Context, code *VerificationCode) error
	Find(ctx context.Context, email, purpose string) (*VerificationCode, error)
	MarkUsed(ctx context.Context, id string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier delivers account emails. Calls are fire-and-forget: failures are
// logged, never surfaced as authentication failures.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordResetEmail(ctx context.Context, email, code string) error
	SendPasswordChangedEmail(ctx context.Context, email string) error
	SendAccountActivatedEmail(ctx context.Context, email string) error
}
