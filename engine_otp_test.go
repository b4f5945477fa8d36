package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wrongCode never matches: issued codes are always in [100000, 999999].
const wrongCode = "000000"

func TestOTPConsumeExactlyOnce(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	code, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "admin@example.com")
	require.NoError(t, err)
	require.Len(t, code, 6)
	assert.Equal(t, 5*time.Minute, te.mr.TTL("ac:otp:admin-login:admin@example.com"))

	err = te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "admin@example.com", wrongCode)
	assert.ErrorIs(t, err, ErrOTPInvalid)

	require.NoError(t, te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "admin@example.com", code))

	err = te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "admin@example.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestOTPSubjectIsNormalized(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	code, err := te.IssueOTP(ctx, OTPPurposePasswordReset, "  Bob@Example.COM ")
	require.NoError(t, err)
	assert.True(t, te.mr.Exists("ac:otp:password-reset:bob@example.com"))

	peeked, _, err := te.PeekOTP(ctx, OTPPurposePasswordReset, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, code, peeked)

	require.NoError(t, te.ConsumeOTP(ctx, OTPPurposePasswordReset, "BOB@example.com", code))
}

func TestOTPPurposesAreIsolated(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	code, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	require.NoError(t, err)

	err = te.ConsumeOTP(ctx, OTPPurposePasswordChange, "alice@example.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)

	assert.NoError(t, te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "alice@example.com", code))
}

func TestOTPReissueReplacesCode(t *testing.T) {
	te := newTestEngine(t)
	te.random = sequenceRandom(0, 1)
	te.initFlowDeps()
	ctx := context.Background()

	first, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	require.NoError(t, err)
	second, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "100000", first)
	assert.Equal(t, "100001", second)

	err = te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "alice@example.com", first)
	assert.ErrorIs(t, err, ErrOTPInvalid)
	assert.NoError(t, te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "alice@example.com", second))
}

func TestOTPExpiresWithTTL(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	code, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	require.NoError(t, err)

	te.mr.FastForward(2 * time.Minute)
	_, left, err := te.PeekOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, left)

	te.mr.FastForward(3*time.Minute + time.Second)
	err = te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "alice@example.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestOTPCustomPurposeUsesDefaultTTL(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.OTP.DefaultTTL = time.Minute })
	ctx := context.Background()

	_, err := te.IssueOTP(ctx, OTPPurpose("email-verify"), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, te.mr.TTL("ac:otp:email-verify:alice@example.com"))
}

func TestOTPRejectsInvalidInput(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	_, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "   ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = te.IssueOTP(ctx, OTPPurpose("bad:purpose"), "alice@example.com")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = te.IssueOTP(ctx, OTPPurpose(""), "alice@example.com")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	err = te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "alice@example.com", " ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestOTPIssueRateLimited(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.RateLimit.OTPIssuePerWindow = 2 })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
		require.NoError(t, err)
	}
	_, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	assert.ErrorIs(t, err, ErrOTPRateLimited)

	_, err = te.IssueOTP(ctx, OTPPurposeAdminLogin, "bob@example.com")
	assert.NoError(t, err)

	te.mr.FastForward(15*time.Minute + time.Second)
	_, err = te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	assert.NoError(t, err)
}

func TestOTPFailureBudget(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.RateLimit.OTPVerifyFailures = 2 })
	ctx := context.Background()

	code, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		err := te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "alice@example.com", wrongCode)
		require.ErrorIs(t, err, ErrOTPInvalid)
	}

	err = te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "alice@example.com", code)
	assert.ErrorIs(t, err, ErrOTPRateLimited)

	// The challenge survives the lockout.
	_, _, err = te.PeekOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	require.NoError(t, err)

	fresh, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	require.NoError(t, err)
	assert.NoError(t, te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "alice@example.com", fresh))
}

func TestOTPCancel(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	code, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, te.CancelOTP(ctx, OTPPurposeAdminLogin, "Alice@example.com"))
	require.NoError(t, te.CancelOTP(ctx, OTPPurposeAdminLogin, "alice@example.com"))

	err = te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "alice@example.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)
	_, _, err = te.PeekOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestOTPStoreOutage(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.breakRedis()
	_, err := te.IssueOTP(ctx, OTPPurposeAdminLogin, "alice@example.com")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	err = te.ConsumeOTP(ctx, OTPPurposeAdminLogin, "alice@example.com", "123456")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrOTPExpired)
}

func TestOTPRandomFailure(t *testing.T) {
	te := newTestEngine(t)
	te.random = failingRandom{}
	te.initFlowDeps()

	_, err := te.IssueOTP(context.Background(), OTPPurposeAdminLogin, "alice@example.com")
	assert.ErrorIs(t, err, ErrTokenGeneration)
	assert.False(t, te.mr.Exists("ac:otp:admin-login:alice@example.com"))
}

type seqRandom struct {
	ids  int
	next []int64
}

func sequenceRandom(values ...int64) *seqRandom {
	return &seqRandom{next: values}
}

func (r *seqRandom) NewID() (string, error) {
	r.ids++
	return "id-" + string(rune('a'+r.ids)), nil
}

func (r *seqRandom) Intn(int64) (int64, error) {
	if len(r.next) == 0 {
		return 0, errInjected
	}
	v := r.next[0]
	r.next = r.next[1:]
	return v, nil
}

type failingRandom struct{}

func (failingRandom) NewID() (string, error)    { return "", errInjected }
func (failingRandom) Intn(int64) (int64, error) { return 0, errInjected }
