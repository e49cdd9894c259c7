package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-social/internal/otp/entity"
)

// ChallengeRepo stores one-time codes in `otp_challenges`.
type ChallengeRepo struct {
	db *sqlx.DB
}

func NewChallengeRepo(db *sqlx.DB) *ChallengeRepo { return &ChallengeRepo{db: db} }

// EnsureTable creates otp_challenges. users must exist first.
func (r *ChallengeRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS otp_challenges (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  purpose TEXT NOT NULL CHECK (purpose IN ('EMAIL_VERIFICATION','LOGIN','PASSWORD_RESET')),
  code TEXT NOT NULL,
  issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  expires_at TIMESTAMPTZ,
  consumed_at TIMESTAMPTZ,
  CONSTRAINT otp_challenges_user_purpose_key UNIQUE (user_id, purpose)
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const challengeColumns = `id, user_id, purpose, code, issued_at, expires_at, consumed_at`

// Issue upserts the challenge for (userID, purpose). The previous code, if
// any, is replaced and its consumed marker cleared.
func (r *ChallengeRepo) Issue(ctx context.Context, userID int64, purpose entity.Purpose, code string, issuedAt time.Time, expiresAt *time.Time) (*entity.Challenge, error) {
	const q = `INSERT INTO otp_challenges (user_id, purpose, code, issued_at, expires_at, consumed_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
		ON CONFLICT (user_id, purpose) DO UPDATE
		  SET code = EXCLUDED.code,
		      issued_at = EXCLUDED.issued_at,
		      expires_at = EXCLUDED.expires_at,
		      consumed_at = NULL
		RETURNING ` + challengeColumns
	var c entity.Challenge
	if err := r.db.GetContext(ctx, &c, q, userID, purpose, code, issuedAt, expiresAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Get returns the challenge for (userID, purpose) or nil. Expired and
// consumed rows are returned as-is; they are never deleted eagerly.
func (r *ChallengeRepo) Get(ctx context.Context, userID int64, purpose entity.Purpose) (*entity.Challenge, error) {
	const q = `SELECT ` + challengeColumns + ` FROM otp_challenges WHERE user_id = $1 AND purpose = $2`
	var c entity.Challenge
	if err := r.db.GetContext(ctx, &c, q, userID, purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Consume marks the challenge used if it still carries code and has not been
// consumed. It reports whether this call consumed it.
func (r *ChallengeRepo) Consume(ctx context.Context, id int64, code string, now time.Time) (bool, error) {
	const q = `UPDATE otp_challenges SET consumed_at = $3
	 WHERE id = $1 AND code = $2 AND consumed_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, id, code, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
