package entity

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is a row in the `users` table. PasswordHash never leaves the process.
type User struct {
	ID            int64      `db:"id" json:"id"`
	Username      string     `db:"username" json:"username"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	FirstName     string     `db:"first_name" json:"firstName"`
	LastName      string     `db:"last_name" json:"lastName"`
	ProfileImage  *string    `db:"profile_image" json:"profileImage"`
	Role          Role       `db:"role" json:"role"`
	IsRestricted  bool       `db:"is_restricted" json:"isRestricted"`
	EmailVerified bool       `db:"email_verified" json:"emailVerified"`
	LastLoginTime *time.Time `db:"last_login_time" json:"lastLoginTime"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// Profile is the account as returned to its owner after login. Credentials,
// one-time codes, role and moderation state are left out.
type Profile struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	ProfileImage  *string    `json:"profileImage"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginTime *time.Time `json:"lastLoginTime"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		ProfileImage:  u.ProfileImage,
		EmailVerified: u.EmailVerified,
		LastLoginTime: u.LastLoginTime,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// Summary is the public card shown in search results and listings.
type Summary struct {
	ID           int64      `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	FirstName    string     `db:"first_name" json:"firstName"`
	LastName     string     `db:"last_name" json:"lastName"`
	ProfileImage *string    `db:"profile_image" json:"profileImage"`
	CreatedAt    *time.Time `db:"created_at" json:"createdAt,omitempty"`
}

// AdminView is what moderators see when listing accounts.
type AdminView struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Role          Role      `json:"role"`
	IsRestricted  bool      `json:"isRestricted"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (u *User) AdminView() AdminView {
	return AdminView{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Role:          u.Role,
		IsRestricted:  u.IsRestricted,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// ProfileUpdate carries the fields a user may change on their own account.
// Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName    *string
	LastName     *string
	ProfileImage *string
}
