package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"fleetgrid.io/internal/audit"
	"fleetgrid.io/internal/ids"
	"fleetgrid.io/internal/obs"
)

const (
	defaultAccessTTL        = 15 * time.Minute
	defaultRefreshTTL       = 7 * 24 * time.Hour
	defaultCodeTTL          = 24 * time.Hour
	defaultLockoutThreshold = 5
	defaultLockoutWindow    = 15 * time.Minute

	tokenTypeBearer = "Bearer"
)

// Service orchestrates authentication, token lifecycle and the verification
// code flows. Each call is independent; the only shared state is the
// read-only permission map.
type Service struct {
	store    Store
	notifier Notifier
	codec    *Codec
	policy   Policy
	now      func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
	codeTTL    time.Duration

	lockoutThreshold int
	lockoutWindow    time.Duration

	rotateRefresh   bool
	fingerprintSalt []byte
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithNotifier sets the email notifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) error {
		if n != nil {
			s.notifier = n
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithCodeTTL configures verification/reset code lifetime.
func WithCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.codeTTL = ttl
		}
		return nil
	}
}

// WithLockout configures the failed-attempt threshold and trailing window.
func WithLockout(threshold int, window time.Duration) ServiceOption {
	return func(s *Service) error {
		if threshold > 0 {
			s.lockoutThreshold = threshold
		}
		if window > 0 {
			s.lockoutWindow = window
		}
		return nil
	}
}

// WithPasswordPolicy overrides the default password rules.
func WithPasswordPolicy(policy Policy) ServiceOption {
	return func(s *Service) error {
		s.policy = policy
		return nil
	}
}

// WithRefreshRotation enables refresh token rotation on every Refresh call.
// The default preserves the non-rotating behavior: the client keeps the same
// refresh token string for its whole lifetime.
func WithRefreshRotation(enabled bool) ServiceOption {
	return func(s *Service) error {
		s.rotateRefresh = enabled
		return nil
	}
}

// WithFingerprintSalt sets the salt mixed into device fingerprints.
func WithFingerprintSalt(salt string) ServiceOption {
	return func(s *Service) error {
		if salt != "" {
			s.fingerprintSalt = []byte(salt)
		}
		return nil
	}
}

// NewService constructs the session manager.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	svc := &Service{
		store:            store,
		notifier:         noopNotifier{},
		codec:            codec,
		policy:           DefaultPolicy(),
		now:              time.Now,
		accessTTL:        defaultAccessTTL,
		refreshTTL:       defaultRefreshTTL,
		codeTTL:          defaultCodeTTL,
		lockoutThreshold: defaultLockoutThreshold,
		lockoutWindow:    defaultLockoutWindow,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	svc.codec.now = svc.now
	return svc, nil
}

// Authenticate verifies credentials and opens a session. The step order is
// part of the security contract: the lockout check runs before any directory
// lookup, and unknown-email and wrong-password failures are indistinguishable
// to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string, meta ClientMeta) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidInput
	}

	windowStart := s.now().Add(-s.lockoutWindow)
	failed, err := s.store.LoginAttempts().CountFailedSince(ctx, email, windowStart)
	if err != nil {
		return Session{}, err
	}
	if failed >= s.lockoutThreshold {
		obs.ObserveLockout()
		_ = audit.LogEvent(ctx, "auth.lockout.engaged", map[string]any{
			"email": email,
			"ip":    meta.IP,
		})
		return Session{}, &LockedError{RetryAfter: s.lockoutWindow}
	}

	identity, err := s.store.Identities().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.recordAttempt(ctx, email, false, "invalid_credentials", meta)
			obs.ObserveLogin("invalid_credentials")
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}

	if identity.Status != StatusActive {
		s.recordAttempt(ctx, email, false, "account_not_active", meta)
		obs.ObserveLogin("account_not_active")
		return Session{}, ErrAccountNotActive
	}

	company, err := s.store.Companies().FindByID(ctx, identity.CompanyID)
	if err != nil {
		return Session{}, err
	}
	if company.Status != CompanyStatusActive {
		s.recordAttempt(ctx, email, false, "company_suspended", meta)
		obs.ObserveLogin("company_suspended")
		return Session{}, ErrCompanySuspended
	}

	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		s.recordAttempt(ctx, email, false, "invalid_credentials", meta)
		obs.ObserveLogin("invalid_credentials")
		return Session{}, ErrInvalidCredentials
	}

	session, err := s.mintSession(ctx, identity, meta)
	if err != nil {
		return Session{}, err
	}
	s.recordAttempt(ctx, email, true, "", meta)
	obs.ObserveLogin("success")
	obs.ObserveTokenIssued("password")
	return session, nil
}

// Refresh exchanges a valid refresh token for a fresh access token with a
// recomputed permission snapshot. The ledger, not the token string, is
// authoritative: a revoked or rotated row fails even if the secret matches.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return Session{}, ErrInvalidToken
	}

	tokens := s.store.RefreshTokens()
	record, err := tokens.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	if !record.Valid(s.now()) {
		return Session{}, ErrInvalidToken
	}
	if !secureCompareHash(record.TokenHash, secret) {
		_ = tokens.MarkRevoked(ctx, record.ID)
		return Session{}, ErrInvalidToken
	}

	identity, err := s.store.Identities().FindByID(ctx, record.IdentityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	if identity.Status != StatusActive {
		return Session{}, ErrAccountNotActive
	}
	// Defends stale and cross-tenant tokens: the company captured at issuance
	// must still be the identity's current company.
	if record.CompanyID != identity.CompanyID {
		return Session{}, ErrInvalidToken
	}
	company, err := s.store.Companies().FindByID(ctx, identity.CompanyID)
	if err != nil {
		return Session{}, err
	}
	if company.Status != CompanyStatusActive {
		return Session{}, ErrCompanySuspended
	}

	accessToken, expiresAt, err := s.codec.Issue(identity, PermissionsForRole(identity.Role), s.accessTTL)
	if err != nil {
		return Session{}, err
	}

	refreshString := refreshToken
	if s.rotateRefresh {
		replacement, replacementString, err := s.newRefreshRecord(identity, ClientMeta{IP: record.IP, UserAgent: record.UserAgent})
		if err != nil {
			return Session{}, err
		}
		replacement.ParentID = record.ID
		if err := tokens.Create(ctx, replacement); err != nil {
			return Session{}, err
		}
		if err := tokens.MarkRotated(ctx, record.ID); err != nil {
			return Session{}, err
		}
		refreshString = replacementString
	}

	obs.ObserveTokenIssued("refresh")
	return Session{
		AccessToken:  accessToken,
		RefreshToken: refreshString,
		TokenType:    tokenTypeBearer,
		ExpiresAt:    expiresAt,
		Identity:     summarize(identity),
	}, nil
}

// Logout revokes every refresh token owned by the token's subject in one bulk
// ledger update, invalidating all devices at once.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		return err
	}
	if err := s.store.RefreshTokens().RevokeAllForIdentity(ctx, claims.Subject); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.logout", map[string]any{
		"identity_id": claims.Subject,
	})
	return nil
}

// Validate verifies an access token and returns its claims.
func (s *Service) Validate(token string) (*Claims, error) {
	return s.codec.Verify(token)
}

// ValidateToken reports whether the access token verifies.
func (s *Service) ValidateToken(token string) bool {
	_, err := s.codec.Verify(token)
	return err == nil
}

// Register creates an INACTIVE identity and sends a verification code. The
// default role is DRIVER; anything more is granted later via ChangeRole.
func (s *Service) Register(ctx context.Context, email, password, fullName, companyID string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	fullName = strings.TrimSpace(fullName)
	companyID = strings.TrimSpace(companyID)
	if email == "" || !strings.Contains(email, "@") || fullName == "" || companyID == "" {
		return ErrInvalidInput
	}
	if err := s.policy.Validate(password); err != nil {
		return err
	}

	company, err := s.store.Companies().FindByID(ctx, companyID)
	if err != nil {
		return err
	}
	if company.Status != CompanyStatusActive {
		return ErrCompanySuspended
	}

	if _, err := s.store.Identities().FindByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	identity := &Identity{
		ID:           ids.New(),
		CompanyID:    companyID,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		Role:         RoleDriver,
		Status:       StatusInactive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Identities().Create(ctx, identity); err != nil {
		return err
	}

	code, err := s.issueCode(ctx, email, PurposeEmailVerify)
	if err != nil {
		return err
	}
	s.notify(ctx, "verification_code", func() error {
		return s.notifier.SendVerificationCode(ctx, email, code)
	})
	return nil
}

// VerifyEmail consumes a verification code and activates the identity.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || code == "" {
		return ErrInvalidInput
	}
	record, err := s.checkCode(ctx, email, PurposeEmailVerify, code)
	if err != nil {
		return err
	}
	if err := s.store.Codes().MarkUsed(ctx, record.ID); err != nil {
		return err
	}

	identity, err := s.store.Identities().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.store.Identities().UpdateStatus(ctx, identity.ID, StatusActive); err != nil {
		return err
	}
	obs.ObserveCodeCheck(PurposeEmailVerify, "success")
	_ = audit.LogEvent(ctx, "auth.email.verified", map[string]any{
		"identity_id": identity.ID,
		"email":       email,
	})
	s.notify(ctx, "account_activated", func() error {
		return s.notifier.SendAccountActivatedEmail(ctx, email)
	})
	return nil
}

// RequestPasswordReset issues a reset code. An unknown email succeeds
// silently so the endpoint cannot enumerate accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ErrInvalidInput
	}
	if _, err := s.store.Identities().FindByEmail(ctx, email); err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.LogEvent(map[string]any{
				"level": "info",
				"msg":   "password reset requested for unknown email",
			})
			return nil
		}
		return err
	}

	code, err := s.issueCode(ctx, email, PurposePasswordReset)
	if err != nil {
		return err
	}
	s.notify(ctx, "password_reset", func() error {
		return s.notifier.SendPasswordResetEmail(ctx, email, code)
	})
	return nil
}

// ResetPassword consumes a reset code and applies the new password. The
// policy check runs before the code is consumed: a rejected password leaves
// the code live for a retry.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || code == "" {
		return ErrInvalidInput
	}
	record, err := s.checkCode(ctx, email, PurposePasswordReset, code)
	if err != nil {
		return err
	}
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}

	identity, err := s.store.Identities().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Codes().MarkUsed(ctx, record.ID); err != nil {
		return err
	}
	if err := s.store.Identities().UpdatePassword(ctx, identity.ID, hash); err != nil {
		return err
	}
	// Every live session dies with the old password.
	if err := s.store.RefreshTokens().RevokeAllForIdentity(ctx, identity.ID); err != nil {
		return err
	}
	obs.ObserveCodeCheck(PurposePasswordReset, "success")
	_ = audit.LogEvent(ctx, "auth.password.reset", map[string]any{
		"identity_id": identity.ID,
		"email":       email,
	})
	s.notify(ctx, "password_changed", func() error {
		return s.notifier.SendPasswordChangedEmail(ctx, email)
	})
	return nil
}

// IsResetCodeValid reports whether a reset code would currently be accepted,
// without consuming it.
func (s *Service) IsResetCodeValid(ctx context.Context, email, code string) bool {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || code == "" {
		return false
	}
	_, err := s.checkCode(ctx, email, PurposePasswordReset, code)
	return err == nil
}

// --- internals ---

func (s *Service) mintSession(ctx context.Context, identity *Identity, meta ClientMeta) (Session, error) {
	accessToken, expiresAt, err := s.codec.Issue(identity, PermissionsForRole(identity.Role), s.accessTTL)
	if err != nil {
		return Session{}, err
	}
	record, refreshString, err := s.newRefreshRecord(identity, meta)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.RefreshTokens().Create(ctx, record); err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:  accessToken,
		RefreshToken: refreshString,
		TokenType:    tokenTypeBearer,
		ExpiresAt:    expiresAt,
		Identity:     summarize(identity),
	}, nil
}

func (s *Service) newRefreshRecord(identity *Identity, meta ClientMeta) (*RefreshToken, string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(secret))
	now := s.now().UTC()
	record := &RefreshToken{
		ID:          tokenID,
		IdentityID:  identity.ID,
		CompanyID:   identity.CompanyID,
		TokenHash:   hex.EncodeToString(sum[:]),
		Fingerprint: s.fingerprint(meta),
		UserAgent:   meta.UserAgent,
		IP:          meta.IP,
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedAt:   now,
	}
	return record, tokenID + "." + secret, nil
}

// fingerprint hashes user-agent and IP into a diagnostic device tag. It is
// spoofable and must never gate an access decision.
func (s *Service) fingerprint(meta ClientMeta) string {
	h := sha256.New()
	h.Write(s.fingerprintSalt)
	h.Write([]byte(meta.UserAgent))
	h.Write([]byte{0})
	h.Write([]byte(meta.IP))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// recordAttempt appends to the login ledger best-effort: a logging failure
// never masks the authentication outcome.
func (s *Service) recordAttempt(ctx context.Context, email string, success bool, reason string, meta ClientMeta) {
	attempt := &LoginAttempt{
		ID:          ids.New(),
		Email:       email,
		Success:     success,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		Reason:      reason,
		AttemptedAt: s.now().UTC(),
	}
	if err := s.store.LoginAttempts().Append(ctx, attempt); err != nil {
		obs.LogEvent(map[string]any{
			"level": "warn",
			"msg":   "login attempt logging failed",
			"error": err.Error(),
		})
	}
}

func (s *Service) issueCode(ctx context.Context, email, purpose string) (string, error) {
	var code string
	var err error
	if purpose == PurposeEmailVerify {
		code, err = generateNumericCode(verificationCodeDigits)
	} else {
		code, err = generateOpaqueCode()
	}
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	record := &VerificationCode{
		ID:        ids.New(),
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: now.Add(s.codeTTL),
		CreatedAt: now,
	}
	if err := s.store.Codes().Replace(ctx, record); err != nil {
		return "", err
	}
	return code, nil
}

// checkCode resolves a code through its state machine without consuming it.
func (s *Service) checkCode(ctx context.Context, email, purpose, code string) (*VerificationCode, error) {
	record, err := s.store.Codes().Find(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveCodeCheck(purpose, "not_found")
			return nil, ErrCodeInvalid
		}
		return nil, err
	}
	if s.now().After(record.ExpiresAt) {
		obs.ObserveCodeCheck(purpose, "expired")
		return nil, ErrCodeExpired
	}
	if record.Used {
		obs.ObserveCodeCheck(purpose, "already_used")
		return nil, ErrCodeUsed
	}
	if !codesEqual(record.Code, code) {
		obs.ObserveCodeCheck(purpose, "mismatch")
		return nil, ErrCodeInvalid
	}
	return record, nil
}

// notify delivers an email fire-and-forget.
func (s *Service) notify(ctx context.Context, kind string, fn func() error) {
	if err := fn(); err != nil {
		obs.LogEvent(map[string]any{
			"level": "warn",
			"msg":   "notification delivery failed",
			"kind":  kind,
			"error": err.Error(),
		})
	}
}

func summarize(identity *Identity) IdentitySummary {
	return IdentitySummary{
		ID:        identity.ID,
		CompanyID: identity.CompanyID,
		Email:     identity.Email,
		FullName:  identity.FullName,
		Role:      identity.Role,
	}
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	return codesEqual(expectedHash, hex.EncodeToString(sum[:]))
}

// noopNotifier is the default until a real notifier is wired in.
type noopNotifier struct{}

func (noopNotifier) SendVerificationCode(context.Context, string, string) error { return nil }
func (noopNotifier) SendPasswordResetEmail(context.Context, string, string) error {
	return nil
}
func (noopNotifier) SendPasswordChangedEmail(context.Context, string) error  { return nil }
func (noopNotifier) SendAccountActivatedEmail(context.Context, string) error { return nil }
