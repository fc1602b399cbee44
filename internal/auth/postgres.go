package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fleetgrid.io/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Every ledger write is a single
// row operation; per-row atomicity of the backing store is the only
// transactional guarantee the subsystem relies on.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Identities() IdentityDirectory    { return &identityStore{db: s.db} }
func (s *PGStore) Companies() CompanyDirectory      { return &companyStore{db: s.db} }
func (s *PGStore) RefreshTokens() RefreshTokenStore { return &refreshTokenStore{db: s.db} }
func (s *PGStore) LoginAttempts() LoginAttemptStore { return &loginAttemptStore{db: s.db} }
func (s *PGStore) Codes() CodeStore                 { return &codeStore{db: s.db} }

// Identity directory -------------------------------------------------------

type identityStore struct{ db *sql.DB }

func (s *identityStore) Create(ctx context.Context, identity *Identity) error {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into identities(id, company_id, email, full_name, password_hash, role, status)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		identity.ID, identity.CompanyID, identity.Email, identity.FullName,
		identity.PasswordHash, string(identity.Role), identity.Status,
	)
	if err != nil {
		return storeErr("create identity", err)
	}
	return nil
}

func (s *identityStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, company_id, email, full_name, password_hash, role, status, created_at, updated_at
		 from identities where id=$1`, id)
	return scanIdentity(row)
}

func (s *identityStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, company_id, email, full_name, password_hash, role, status, created_at, updated_at
		 from identities where email=$1`, email)
	return scanIdentity(row)
}

func scanIdentity(row *sql.Row) (*Identity, error) {
	var (
		identity Identity
		role     string
	)
	err := row.Scan(&identity.ID, &identity.CompanyID, &identity.Email, &identity.FullName,
		&identity.PasswordHash, &role, &identity.Status, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find identity", err)
	}
	identity.Role = Role(role)
	return &identity, nil
}

func (s *identityStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return storeErr("update password", err)
	}
	return requireRow(res)
}

func (s *identityStore) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set status=$2, updated_at=now() where id=$1`, id, status)
	if err != nil {
		return storeErr("update status", err)
	}
	return requireRow(res)
}

func (s *identityStore) UpdateRole(ctx context.Context, id string, role Role) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set role=$2, updated_at=now() where id=$1`, id, string(role))
	if err != nil {
		return storeErr("update role", err)
	}
	return requireRow(res)
}

func (s *identityStore) CountByCompany(ctx context.Context, companyID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from identities where company_id=$1`, companyID).Scan(&count)
	if err != nil {
		return 0, storeErr("count identities", err)
	}
	return count, nil
}

// Company directory --------------------------------------------------------

type companyStore struct{ db *sql.DB }

func (s *companyStore) FindByID(ctx context.Context, id string) (*Company, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, status, created_at, updated_at from companies where id=$1`, id)
	var company Company
	err := row.Scan(&company.ID, &company.Name, &company.Status, &company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find company", err)
	}
	return &company, nil
}

// Refresh token ledger -----------------------------------------------------

type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, token *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, identity_id, company_id, token_hash, fingerprint, user_agent, ip, expires_at, revoked, rotated, parent_id, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,false,false,nullif($9,''),$10)`,
		token.ID, token.IdentityID, token.CompanyID, token.TokenHash, token.Fingerprint,
		token.UserAgent, token.IP, token.ExpiresAt, token.ParentID, token.CreatedAt,
	)
	if err != nil {
		return storeErr("create refresh token", err)
	}
	return nil
}

func (s *refreshTokenStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, identity_id, company_id, token_hash, fingerprint, user_agent, ip, expires_at, revoked, rotated, coalesce(parent_id,''), created_at
		 from refresh_tokens where id=$1`, id)
	var token RefreshToken
	err := row.Scan(&token.ID, &token.IdentityID, &token.CompanyID, &token.TokenHash,
		&token.Fingerprint, &token.UserAgent, &token.IP, &token.ExpiresAt,
		&token.Revoked, &token.Rotated, &token.ParentID, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find refresh token", err)
	}
	return &token, nil
}

func (s *refreshTokenStore) MarkRevoked(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1`, id)
	if err != nil {
		return storeErr("revoke refresh token", err)
	}
	return nil
}

func (s *refreshTokenStore) MarkRotated(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set rotated=true where id=$1`, id)
	if err != nil {
		return storeErr("rotate refresh token", err)
	}
	return nil
}

// RevokeAllForIdentity is one bulk update so no concurrently issued session
// escapes a logout.
func (s *refreshTokenStore) RevokeAllForIdentity(ctx context.Context, identityID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where identity_id=$1 and not revoked`, identityID)
	if err != nil {
		return storeErr("revoke refresh tokens", err)
	}
	return nil
}

func (s *refreshTokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at < $1`, cutoff)
	if err != nil {
		return 0, storeErr("delete expired refresh tokens", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Login attempt ledger -----------------------------------------------------

type loginAttemptStore struct{ db *sql.DB }

func (s *loginAttemptStore) Append(ctx context.Context, attempt *LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into login_attempts(id, email, success, ip, user_agent, reason, attempted_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		attempt.ID, attempt.Email, attempt.Success, attempt.IP,
		attempt.UserAgent, attempt.Reason, attempt.AttemptedAt,
	)
	if err != nil {
		return storeErr("append login attempt", err)
	}
	return nil
}

func (s *loginAttemptStore) CountFailedSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from login_attempts where email=$1 and not success and attempted_at >= $2`,
		email, since).Scan(&count)
	if err != nil {
		return 0, storeErr("count failed attempts", err)
	}
	return count, nil
}

func (s *loginAttemptStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from login_attempts where attempted_at < $1`, cutoff)
	if err != nil {
		return 0, storeErr("delete login attempts", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Verification code ledger -------------------------------------------------

type codeStore struct{ db *sql.DB }

// Replace retires any prior live code for the (email, purpose) pair before
// inserting the new row. Concurrent resends race last-writer-wins.
func (s *codeStore) Replace(ctx context.Context, code *VerificationCode) error {
	if code.ID == "" {
		code.ID = ids.New()
	}
	if _, err := s.db.ExecContext(ctx,
		`delete from verification_codes where email=$1 and purpose=$2`,
		code.Email, code.Purpose); err != nil {
		return storeErr("retire verification code", err)
	}
	_, err := s.db.ExecContext(ctx,
		`insert into verification_codes(id, email, purpose, code, expires_at, used, created_at)
		 values($1,$2,$3,$4,$5,false,$6)`,
		code.ID, code.Email, code.Purpose, code.Code, code.ExpiresAt, code.CreatedAt,
	)
	if err != nil {
		return storeErr("create verification code", err)
	}
	return nil
}

func (s *codeStore) Find(ctx context.Context, email, purpose string) (*VerificationCode, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, purpose, code, expires_at, used, created_at
		 from verification_codes where email=$1 and purpose=$2`, email, purpose)
	var code VerificationCode
	err := row.Scan(&code.ID, &code.Email, &code.Purpose, &code.Code,
		&code.ExpiresAt, &code.Used, &code.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find verification code", err)
	}
	return &code, nil
}

func (s *codeStore) MarkUsed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update verification_codes set used=true where id=$1`, id)
	if err != nil {
		return storeErr("mark code used", err)
	}
	return requireRow(res)
}

func (s *codeStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from verification_codes where expires_at < $1`, cutoff)
	if err != nil {
		return 0, storeErr("delete expired codes", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
