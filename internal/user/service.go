package user

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-social/internal/credential"
	"github.com/ovaphlow/pitchfork/service-social/internal/otp"
	otpentity "github.com/ovaphlow/pitchfork/service-social/internal/otp/entity"
	"github.com/ovaphlow/pitchfork/service-social/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-social/internal/user/repo"
)

// maxUsernameAttempts bounds the suffix search for one signup.
const maxUsernameAttempts = 1000

const recentUsersLimit = 4

var (
	ErrCreationFailed     = apperr.New(apperr.Conflict, "User creation failed")
	ErrInvalidCredentials = apperr.New(apperr.Authentication, "Invalid credentials")
	ErrEmailNotVerified   = apperr.New(apperr.Forbidden, "Email not verified")
	ErrUserNotFound       = apperr.New(apperr.NotFound, "User not found")
	ErrAlreadyVerified    = apperr.New(apperr.Validation, "Email already verified")
	ErrInvalidOTP         = apperr.New(apperr.Authentication, "Invalid OTP")
	ErrOTPNotSent         = apperr.New(apperr.Validation, "Invalid user or OTP not sent")
	ErrInvalidReset       = apperr.New(apperr.Validation, "Invalid reset request")
	ErrResetExpired       = apperr.New(apperr.Validation, "Reset token has expired")
	ErrInvalidResetOTP    = apperr.New(apperr.Validation, "Invalid OTP")
	ErrUsernameRequired   = apperr.New(apperr.Validation, "Username is required")
)

// Store is the persistence the service needs. *repo.UserRepo implements it;
// lookups return sql.ErrNoRows when nothing matches.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	MarkEmailVerified(ctx context.Context, id int64) (bool, error)
	RecordLogin(ctx context.Context, id int64, at time.Time) (*entity.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateProfile(ctx context.Context, id int64, p entity.ProfileUpdate) (*entity.User, error)
	Delete(ctx context.Context, id int64) error
	SummaryByUsername(ctx context.Context, username string) (*entity.Summary, error)
	Recent(ctx context.Context, limit int) ([]entity.Summary, error)
}

// Challenges issues and redeems one-time codes. *otp.Service implements it.
type Challenges interface {
	Issue(ctx context.Context, userID int64, email string, purpose otpentity.Purpose) error
	Check(ctx context.Context, userID int64, purpose otpentity.Purpose, input string) (*otpentity.Challenge, error)
	Redeem(ctx context.Context, userID int64, purpose otpentity.Purpose, input string) error
}

type TokenGenerator interface {
	Generate(userID int64, role string) (string, time.Time, error)
}

// UserService runs the account flows: signup and email verification, the
// two-step login, password reset and profile management.
type UserService struct {
	store  Store
	codes  Challenges
	hasher credential.PasswordHasher
	tokens TokenGenerator
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewUserService(store Store, codes Challenges, hasher credential.PasswordHasher, tokens TokenGenerator, logger *zap.SugaredLogger) *UserService {
	if hasher == nil {
		hasher = credential.BcryptHasher{}
	}
	return &UserService{store: store, codes: codes, hasher: hasher, tokens: tokens, logger: logger, now: time.Now}
}

// WithClock replaces the time source used for login timestamps.
func (s *UserService) WithClock(now func() time.Time) *UserService {
	s.now = now
	return s
}

// BaseUsername derives "@" + first + last, lower-cased with no separator.
func BaseUsername(firstName, lastName string) string {
	squash := func(v string) string { return strings.ToLower(strings.Join(strings.Fields(v), "")) }
	return "@" + squash(firstName) + squash(lastName)
}

func candidateUsername(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return base + strconv.Itoa(attempt)
}

type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Signup creates an unverified USER account and mails a verification code.
// Usernames are claimed by inserting against the unique constraint and
// retrying with the next suffix on conflict, so concurrent signups with the
// same name never share a username.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*entity.User, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "User creation failed", err)
	}
	u := &entity.User{
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         entity.RoleUser,
	}
	base := BaseUsername(in.FirstName, in.LastName)

	created := false
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		u.Username = candidateUsername(base, attempt)
		err = s.store.Create(ctx, u)
		if errors.Is(err, userrepo.ErrDuplicateUsername) {
			continue
		}
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, apperr.Because(ErrCreationFailed, err)
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.Persistence, "User creation failed", err)
		}
		created = true
		break
	}
	if !created {
		return nil, apperr.Because(ErrCreationFailed, errors.New("username suffixes exhausted for "+base))
	}
	s.logger.Infow("user created", "user_id", u.ID, "username", u.Username)

	if err := s.codes.Issue(ctx, u.ID, u.Email, otpentity.PurposeEmailVerification); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) byEmail(ctx context.Context, email string, notFound *apperr.Error) (*entity.User, error) {
	u, err := s.store.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "failed to load user", err)
	}
	return u, nil
}

// ResendVerification replaces the pending verification code with a new one.
func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	u, err := s.byEmail(ctx, email, ErrUserNotFound)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return ErrAlreadyVerified
	}
	return s.codes.Issue(ctx, u.ID, u.Email, otpentity.PurposeEmailVerification)
}

// VerifyEmail confirms the address. An already verified account is rejected
// without any change.
func (s *UserService) VerifyEmail(ctx context.Context, email, code string) error {
	u, err := s.byEmail(ctx, email, ErrUserNotFound)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return ErrAlreadyVerified
	}
	if err := s.codes.Redeem(ctx, u.ID, otpentity.PurposeEmailVerification, code); err != nil {
		return mapCodeError(err, ErrInvalidOTP, ErrInvalidOTP, ErrInvalidOTP)
	}
	ok, err := s.store.MarkEmailVerified(ctx, u.ID)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "OTP verification failed", err)
	}
	if !ok {
		return ErrAlreadyVerified
	}
	s.logger.Infow("email verified", "user_id", u.ID)
	return nil
}

// Login checks the password and mails a login code. It returns the user id
// the client must send back with the code.
func (s *UserService) Login(ctx context.Context, email, password string) (int64, error) {
	u, err := s.byEmail(ctx, email, ErrInvalidCredentials)
	if err != nil {
		return 0, err
	}
	if !s.hasher.Compare(password, u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}
	if !u.EmailVerified {
		return 0, ErrEmailNotVerified
	}
	if err := s.codes.Issue(ctx, u.ID, u.Email, otpentity.PurposeLogin); err != nil {
		return 0, err
	}
	return u.ID, nil
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      entity.Profile
}

// VerifyLoginOTP completes a login: it consumes the code, stamps the login
// time and issues a session token.
func (s *UserService) VerifyLoginOTP(ctx context.Context, userID int64, code string) (*LoginResult, error) {
	u, err := s.store.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOTPNotSent
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "OTP verification failed", err)
	}
	if err := s.codes.Redeem(ctx, u.ID, otpentity.PurposeLogin, code); err != nil {
		return nil, mapCodeError(err, ErrOTPNotSent, ErrOTPNotSent, ErrInvalidOTP)
	}
	updated, err := s.store.RecordLogin(ctx, u.ID, s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "OTP verification failed", err)
	}
	token, exp, err := s.tokens.Generate(updated.ID, string(updated.Role))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "OTP verification failed", err)
	}
	s.logger.Infow("user logged in", "user_id", updated.ID)
	return &LoginResult{Token: token, ExpiresAt: exp, User: updated.Profile()}, nil
}

// ForgotPassword mails a reset code that expires after the configured reset
// TTL.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.byEmail(ctx, email, ErrUserNotFound)
	if err != nil {
		return err
	}
	return s.codes.Issue(ctx, u.ID, u.Email, otpentity.PurposePasswordReset)
}

// VerifyResetOTP confirms a reset code without consuming it.
func (s *UserService) VerifyResetOTP(ctx context.Context, email, code string) error {
	u, err := s.byEmail(ctx, email, ErrInvalidReset)
	if err != nil {
		return err
	}
	if _, err := s.codes.Check(ctx, u.ID, otpentity.PurposePasswordReset, code); err != nil {
		return mapCodeError(err, ErrInvalidReset, ErrResetExpired, ErrInvalidResetOTP)
	}
	return nil
}

// ResetPassword consumes the reset code and stores the new password. The
// same code cannot be used twice.
func (s *UserService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	u, err := s.byEmail(ctx, email, ErrInvalidReset)
	if err != nil {
		return err
	}
	if _, err := s.codes.Check(ctx, u.ID, otpentity.PurposePasswordReset, code); err != nil {
		return mapCodeError(err, ErrInvalidReset, ErrResetExpired, ErrInvalidReset)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "Password reset failed", err)
	}
	if err := s.codes.Redeem(ctx, u.ID, otpentity.PurposePasswordReset, code); err != nil {
		return mapCodeError(err, ErrInvalidReset, ErrResetExpired, ErrInvalidReset)
	}
	if err := s.store.UpdatePassword(ctx, u.ID, hash); err != nil {
		return apperr.Wrap(apperr.Persistence, "Password reset failed", err)
	}
	s.logger.Infow("password reset", "user_id", u.ID)
	return nil
}

// mapCodeError turns otp failures into the flow's public errors. Anything
// else (storage trouble) passes through.
func mapCodeError(err error, missing, expired, mismatch *apperr.Error) error {
	switch {
	case errors.Is(err, otp.ErrNoChallenge):
		return apperr.Because(missing, err)
	case errors.Is(err, otp.ErrExpired):
		return apperr.Because(expired, err)
	case errors.Is(err, otp.ErrCodeMismatch):
		return apperr.Because(mismatch, err)
	default:
		return err
	}
}

func (s *UserService) UpdateProfile(ctx context.Context, id int64, p entity.ProfileUpdate) (*entity.Profile, error) {
	u, err := s.store.UpdateProfile(ctx, id, p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "User update failed", err)
	}
	out := u.Profile()
	return &out, nil
}

func (s *UserService) DeleteAccount(ctx context.Context, id int64) error {
	err := s.store.Delete(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "User deletion failed", err)
	}
	s.logger.Infow("user deleted", "user_id", id)
	return nil
}

func (s *UserService) SearchByUsername(ctx context.Context, username string) (*entity.Summary, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	sum, err := s.store.SummaryByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "User search failed", err)
	}
	return sum, nil
}

// RecentUsers returns the four newest accounts.
func (s *UserService) RecentUsers(ctx context.Context) ([]entity.Summary, error) {
	out, err := s.store.Recent(ctx, recentUsersLimit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "Failed to fetch recent users", err)
	}
	return out, nil
}
