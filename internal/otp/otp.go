// Package otp issues, mails and redeems six-digit one-time codes.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-social/internal/otp/entity"
	"github.com/ovaphlow/pitchfork/service-social/pkg/mailer"
)

const (
	codeMin = 100000
	codeMax = 999999
)

var (
	// ErrNoChallenge means no unconsumed code exists for the user and
	// purpose.
	ErrNoChallenge  = errors.New("no live challenge")
	ErrExpired      = errors.New("challenge expired")
	ErrCodeMismatch = errors.New("code mismatch")
)

// Generate returns a code drawn uniformly from [100000, 999999].
func Generate() string {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("otp: read random: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin)
}

// Verify is exact string equality. No trimming or normalization.
func Verify(stored, input string) bool {
	return stored != "" && stored == input
}

// Store persists challenges. Get returns nil, nil when nothing was ever
// issued for the pair.
type Store interface {
	Issue(ctx context.Context, userID int64, purpose entity.Purpose, code string, issuedAt time.Time, expiresAt *time.Time) (*entity.Challenge, error)
	Get(ctx context.Context, userID int64, purpose entity.Purpose) (*entity.Challenge, error)
	Consume(ctx context.Context, id int64, code string, now time.Time) (bool, error)
}

type Options struct {
	// TTL bounds login and email verification codes. Zero means they only
	// stop working when consumed or overwritten.
	TTL time.Duration
	// ResetTTL bounds password reset codes.
	ResetTTL time.Duration
}

type Service struct {
	store    Store
	sender   *Sender
	opts     Options
	logger   *zap.SugaredLogger
	now      func() time.Time
	generate func() string
}

func NewService(store Store, m mailer.Mailer, opts Options, logger *zap.SugaredLogger) *Service {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	return &Service{
		store:    store,
		sender:   NewSender(m),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		generate: Generate,
	}
}

// WithClock replaces the time source used for issuing and expiry checks.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) expiry(purpose entity.Purpose, issued time.Time) *time.Time {
	ttl := s.opts.TTL
	if purpose == entity.PurposePasswordReset {
		ttl = s.opts.ResetTTL
	}
	if ttl <= 0 {
		return nil
	}
	exp := issued.Add(ttl)
	return &exp
}

// Issue stores a fresh code for (userID, purpose), replacing any previous one,
// and mails it to email. A concurrent second Issue silently invalidates the
// first code.
func (s *Service) Issue(ctx context.Context, userID int64, email string, purpose entity.Purpose) error {
	if !purpose.Valid() {
		return apperr.New(apperr.Internal, "unknown one-time code purpose: "+string(purpose))
	}
	code := s.generate()
	now := s.now()
	if _, err := s.store.Issue(ctx, userID, purpose, code, now, s.expiry(purpose, now)); err != nil {
		return apperr.Wrap(apperr.Persistence, "failed to store one-time code", err)
	}
	if err := s.sender.Send(ctx, email, code, purpose); err != nil {
		return err
	}
	s.logger.Debugw("otp issued", "user_id", userID, "purpose", purpose)
	return nil
}

// Check reports whether input matches the live code without consuming it.
// Failures are ErrNoChallenge, ErrExpired or ErrCodeMismatch, in that order
// of precedence.
func (s *Service) Check(ctx context.Context, userID int64, purpose entity.Purpose, input string) (*entity.Challenge, error) {
	ch, err := s.store.Get(ctx, userID, purpose)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "failed to load one-time code", err)
	}
	if ch == nil || ch.ConsumedAt != nil {
		return nil, ErrNoChallenge
	}
	if !ch.LiveAt(s.now()) {
		return nil, ErrExpired
	}
	if !Verify(ch.Code, input) {
		return nil, ErrCodeMismatch
	}
	return ch, nil
}

// Redeem checks input and consumes the code. A code redeems at most once even
// when two requests race on it.
func (s *Service) Redeem(ctx context.Context, userID int64, purpose entity.Purpose, input string) error {
	ch, err := s.Check(ctx, userID, purpose, input)
	if err != nil {
		return err
	}
	ok, err := s.store.Consume(ctx, ch.ID, ch.Code, s.now())
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "failed to consume one-time code", err)
	}
	if !ok {
		return ErrNoChallenge
	}
	return nil
}
