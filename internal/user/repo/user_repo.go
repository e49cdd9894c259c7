package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-social/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-social/pkg/database"
)

var (
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already registered")
)

const (
	usernameKey = "users_username_key"
	emailKey    = "users_email_key"
)

// UserRepo provides data access for the users table using sqlx. Lookups
// return sql.ErrNoRows when nothing matches.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  username TEXT NOT NULL,
  email CITEXT NOT NULL,
  password_hash TEXT NOT NULL,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  profile_image TEXT,
  role TEXT NOT NULL DEFAULT 'USER' CHECK (role IN ('USER','ADMIN')),
  is_restricted BOOLEAN NOT NULL DEFAULT false,
  email_verified BOOLEAN NOT NULL DEFAULT false,
  last_login_time TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT users_username_key UNIQUE (username),
  CONSTRAINT users_email_key UNIQUE (email)
);
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const userColumns = `id, username, email, password_hash, first_name, last_name, profile_image,
	role, is_restricted, email_verified, last_login_time, created_at, updated_at`

// Create inserts u and fills in its generated fields. A unique violation is
// reported as ErrDuplicateUsername or ErrDuplicateEmail.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (username, email, password_hash, first_name, last_name, role, email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowxContext(ctx, q,
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.EmailVerified,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err, usernameKey):
		return ErrDuplicateUsername
	case database.IsUniqueViolation(err, emailKey):
		return ErrDuplicateEmail
	default:
		return err
	}
}

func (r *UserRepo) get(ctx context.Context, where string, arg any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE `+where, arg); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.get(ctx, "id = $1", id)
}

// GetByEmail matches case-insensitively (citext).
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.get(ctx, "email = $1", email)
}

// MarkEmailVerified flips email_verified once. It reports false when the
// address was already verified.
func (r *UserRepo) MarkEmailVerified(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verified = true, updated_at = NOW() WHERE id = $1 AND email_verified = false`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RecordLogin stamps last_login_time and returns the updated row.
func (r *UserRepo) RecordLogin(ctx context.Context, id int64, at time.Time) (*entity.User, error) {
	var u entity.User
	err := r.db.GetContext(ctx, &u,
		`UPDATE users SET last_login_time = $2 WHERE id = $1 RETURNING `+userColumns, id, at)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateProfile applies the non-nil fields of p.
func (r *UserRepo) UpdateProfile(ctx context.Context, id int64, p entity.ProfileUpdate) (*entity.User, error) {
	const q = `UPDATE users SET
		first_name = COALESCE($2, first_name),
		last_name = COALESCE($3, last_name),
		profile_image = COALESCE($4, profile_image),
		updated_at = NOW()
	  WHERE id = $1 RETURNING ` + userColumns
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id, p.FirstName, p.LastName, p.ProfileImage); err != nil {
		return nil, err
	}
	return &u, nil
}

// Delete removes the user. Owned rows go with it through ON DELETE CASCADE.
func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *UserRepo) SummaryByUsername(ctx context.Context, username string) (*entity.Summary, error) {
	var s entity.Summary
	err := r.db.GetContext(ctx, &s,
		`SELECT id, username, first_name, last_name, profile_image FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Recent returns the newest accounts first.
func (r *UserRepo) Recent(ctx context.Context, limit int) ([]entity.Summary, error) {
	out := []entity.Summary{}
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, username, first_name, last_name, profile_image, created_at
		   FROM users ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	return out, err
}

func (r *UserRepo) List(ctx context.Context) ([]entity.User, error) {
	out := []entity.User{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+userColumns+` FROM users ORDER BY id`)
	return out, err
}

// SetRestricted sets is_restricted to *value, or toggles it in place when
// value is nil.
func (r *UserRepo) SetRestricted(ctx context.Context, id int64, value *bool) (*entity.User, error) {
	const q = `UPDATE users SET is_restricted = COALESCE($2, NOT is_restricted), updated_at = NOW()
	  WHERE id = $1 RETURNING ` + userColumns
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id, value); err != nil {
		return nil, err
	}
	return &u, nil
}
