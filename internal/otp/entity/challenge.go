package entity

import "time"

// Purpose tags a challenge with the flow it belongs to. A code issued for one
// purpose never satisfies another.
type Purpose string

const (
	PurposeEmailVerification Purpose = "EMAIL_VERIFICATION"
	PurposeLogin             Purpose = "LOGIN"
	PurposePasswordReset     Purpose = "PASSWORD_RESET"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailVerification, PurposeLogin, PurposePasswordReset:
		return true
	}
	return false
}

// Challenge is a one-shot code row in `otp_challenges`. There is at most one
// row per (user, purpose); issuing again overwrites it.
type Challenge struct {
	ID         int64      `db:"id"`
	UserID     int64      `db:"user_id"`
	Purpose    Purpose    `db:"purpose"`
	Code       string     `db:"code"`
	IssuedAt   time.Time  `db:"issued_at"`
	ExpiresAt  *time.Time `db:"expires_at"`
	ConsumedAt *time.Time `db:"consumed_at"`
}

// LiveAt reports whether the challenge can still be redeemed at now.
func (c *Challenge) LiveAt(now time.Time) bool {
	if c == nil || c.ConsumedAt != nil {
		return false
	}
	return c.ExpiresAt == nil || !now.After(*c.ExpiresAt)
}
