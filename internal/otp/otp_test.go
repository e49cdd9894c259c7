package otp_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-social/internal/otp"
	"github.com/ovaphlow/pitchfork/service-social/internal/otp/entity"
	"github.com/ovaphlow/pitchfork/service-social/internal/otp/otptest"
)

func TestGenerateIsSixDigits(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code := otp.Generate()
		require.Len(t, code, 6)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', "code %q", code)
		}
		require.NotEqual(t, byte('0'), code[0])
	}
}

func TestVerifyIsExactEquality(t *testing.T) {
	assert.True(t, otp.Verify("123456", "123456"))
	assert.False(t, otp.Verify("123456", "123457"))
	assert.False(t, otp.Verify("123456", " 123456"))
	assert.False(t, otp.Verify("123456", "123456 "))
	assert.False(t, otp.Verify("", ""))
}

type fixture struct {
	store  *otptest.Store
	mailer *otptest.Mailer
	svc    *otp.Service
	now    time.Time
}

func newFixture(opts otp.Options) *fixture {
	f := &fixture{
		store:  otptest.NewStore(),
		mailer: &otptest.Mailer{},
		now:    time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = otp.NewService(f.store, f.mailer, opts, zap.NewNop().Sugar()).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) code(t *testing.T, userID int64, p entity.Purpose) string {
	t.Helper()
	code := f.store.Code(userID, p)
	require.NotEmpty(t, code)
	return code
}

func TestIssueMailsCode(t *testing.T) {
	f := newFixture(otp.Options{})
	require.NoError(t, f.svc.Issue(context.Background(), 1, "jane@example.com", entity.PurposeEmailVerification))

	msg := f.mailer.Last()
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Equal(t, "Your OTP for Email Verification", msg.Subject)
	assert.Contains(t, msg.Text, f.code(t, 1, entity.PurposeEmailVerification))
	assert.True(t, strings.HasPrefix(msg.HTML, "<p>"))
}

func TestRedeemOnce(t *testing.T) {
	f := newFixture(otp.Options{})
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, 1, "a@x.com", entity.PurposeLogin))
	code := f.code(t, 1, entity.PurposeLogin)

	require.NoError(t, f.svc.Redeem(ctx, 1, entity.PurposeLogin, code))
	assert.ErrorIs(t, f.svc.Redeem(ctx, 1, entity.PurposeLogin, code), otp.ErrNoChallenge)
}

func TestRedeemMismatchLeavesCodeUsable(t *testing.T) {
	f := newFixture(otp.Options{})
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, 1, "a@x.com", entity.PurposeLogin))
	code := f.code(t, 1, entity.PurposeLogin)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	assert.ErrorIs(t, f.svc.Redeem(ctx, 1, entity.PurposeLogin, wrong), otp.ErrCodeMismatch)
	assert.NoError(t, f.svc.Redeem(ctx, 1, entity.PurposeLogin, code))
}

func TestPurposesAreIsolated(t *testing.T) {
	f := newFixture(otp.Options{})
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, 1, "a@x.com", entity.PurposeLogin))
	code := f.code(t, 1, entity.PurposeLogin)

	_, err := f.svc.Check(ctx, 1, entity.PurposeEmailVerification, code)
	assert.ErrorIs(t, err, otp.ErrNoChallenge)
	_, err = f.svc.Check(ctx, 1, entity.PurposePasswordReset, code)
	assert.ErrorIs(t, err, otp.ErrNoChallenge)
	_, err = f.svc.Check(ctx, 2, entity.PurposeLogin, code)
	assert.ErrorIs(t, err, otp.ErrNoChallenge)
}

func TestReissueOverwritesPreviousCode(t *testing.T) {
	f := newFixture(otp.Options{})
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, 1, "a@x.com", entity.PurposeLogin))
	first := f.code(t, 1, entity.PurposeLogin)
	for {
		require.NoError(t, f.svc.Issue(ctx, 1, "a@x.com", entity.PurposeLogin))
		if f.code(t, 1, entity.PurposeLogin) != first {
			break
		}
	}
	assert.ErrorIs(t, f.svc.Redeem(ctx, 1, entity.PurposeLogin, first), otp.ErrCodeMismatch)
}

func TestResetCodeExpires(t *testing.T) {
	f := newFixture(otp.Options{ResetTTL: time.Hour})
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, 1, "a@x.com", entity.PurposePasswordReset))
	code := f.code(t, 1, entity.PurposePasswordReset)
	c, err := f.store.Get(ctx, 1, entity.PurposePasswordReset)
	require.NoError(t, err)
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, f.now.Add(time.Hour), *c.ExpiresAt)

	f.now = f.now.Add(time.Hour)
	_, err = f.svc.Check(ctx, 1, entity.PurposePasswordReset, code)
	assert.NoError(t, err, "valid at the expiry instant")

	f.now = f.now.Add(time.Second)
	_, err = f.svc.Check(ctx, 1, entity.PurposePasswordReset, code)
	assert.ErrorIs(t, err, otp.ErrExpired)

	c, err = f.store.Get(ctx, 1, entity.PurposePasswordReset)
	require.NoError(t, err)
	assert.NotNil(t, c, "expired rows are not deleted")
}

func TestLoginCodesDoNotExpireByDefault(t *testing.T) {
	f := newFixture(otp.Options{})
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, 1, "a@x.com", entity.PurposeLogin))
	code := f.code(t, 1, entity.PurposeLogin)

	f.now = f.now.Add(30 * 24 * time.Hour)
	assert.NoError(t, f.svc.Redeem(ctx, 1, entity.PurposeLogin, code))
}

func TestLoginCodesExpireWithTTL(t *testing.T) {
	f := newFixture(otp.Options{TTL: 10 * time.Minute})
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, 1, "a@x.com", entity.PurposeLogin))
	code := f.code(t, 1, entity.PurposeLogin)

	f.now = f.now.Add(11 * time.Minute)
	assert.ErrorIs(t, f.svc.Redeem(ctx, 1, entity.PurposeLogin, code), otp.ErrExpired)
}

func TestIssueDeliveryFailure(t *testing.T) {
	f := newFixture(otp.Options{})
	f.mailer.Fail = true

	err := f.svc.Issue(context.Background(), 1, "a@x.com", entity.PurposeLogin)
	require.Error(t, err)
	assert.ErrorIs(t, err, otp.ErrDelivery)
	assert.Equal(t, 500, apperr.KindOf(err).Status())
}

func TestIssueStoreFailure(t *testing.T) {
	f := newFixture(otp.Options{})
	f.store.Err = errors.New("connection refused")

	err := f.svc.Issue(context.Background(), 1, "a@x.com", entity.PurposeLogin)
	assert.Equal(t, apperr.Persistence, apperr.KindOf(err))
	assert.Zero(t, f.mailer.Count(), "nothing is mailed when the code was not stored")
}

func TestIssueRejectsUnknownPurpose(t *testing.T) {
	f := newFixture(otp.Options{})
	err := f.svc.Issue(context.Background(), 1, "a@x.com", entity.Purpose("MAGIC_LINK"))
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.Zero(t, f.mailer.Count())
}

func TestConcurrentRedeemSucceedsOnce(t *testing.T) {
	f := newFixture(otp.Options{})
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, 1, "a@x.com", entity.PurposeLogin))
	code := f.code(t, 1, entity.PurposeLogin)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.svc.Redeem(ctx, 1, entity.PurposeLogin, code) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
