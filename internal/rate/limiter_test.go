package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestOTPIssueWindow(t *testing.T) {
	l, mr := newLimiterTest(t, Config{OTPIssuePerWindow: 2, OTPWindow: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.CheckOTPIssue(ctx, "admin-login", "root"))
	require.NoError(t, l.CheckOTPIssue(ctx, "admin-login", "root"))
	assert.ErrorIs(t, l.CheckOTPIssue(ctx, "admin-login", "root"), ErrRateLimited)

	// Other subjects and purposes have their own budget.
	require.NoError(t, l.CheckOTPIssue(ctx, "admin-login", "other"))
	require.NoError(t, l.CheckOTPIssue(ctx, "password-reset", "root"))

	mr.FastForward(61 * time.Second)
	require.NoError(t, l.CheckOTPIssue(ctx, "admin-login", "root"))
}

func TestRefundOTPIssueRestoresBudget(t *testing.T) {
	l, mr := newLimiterTest(t, Config{OTPIssuePerWindow: 1, OTPWindow: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.CheckOTPIssue(ctx, "admin-login", "root"))
	require.NoError(t, l.RefundOTPIssue(ctx, "admin-login", "root"))
	require.NoError(t, l.CheckOTPIssue(ctx, "admin-login", "root"))
	assert.ErrorIs(t, l.CheckOTPIssue(ctx, "admin-login", "root"), ErrRateLimited)
	assert.Equal(t, time.Minute, mr.TTL("ac:rl:oi:admin-login:root"))

	// A refund after the window lapsed leaves no counter behind.
	mr.FastForward(61 * time.Second)
	require.NoError(t, l.RefundOTPIssue(ctx, "admin-login", "root"))
	assert.False(t, mr.Exists("ac:rl:oi:admin-login:root"))
	require.NoError(t, l.CheckOTPIssue(ctx, "admin-login", "root"))
}

func TestOTPVerifyFailures(t *testing.T) {
	l, _ := newLimiterTest(t, Config{OTPVerifyFailures: 2, OTPWindow: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.CheckOTPVerify(ctx, "password-change", "u@example.com"))
	require.NoError(t, l.RecordOTPFailure(ctx, "password-change", "u@example.com"))
	require.NoError(t, l.CheckOTPVerify(ctx, "password-change", "u@example.com"))
	require.NoError(t, l.RecordOTPFailure(ctx, "password-change", "u@example.com"))
	assert.ErrorIs(t, l.CheckOTPVerify(ctx, "password-change", "u@example.com"), ErrRateLimited)

	require.NoError(t, l.ResetOTPFailures(ctx, "password-change", "u@example.com"))
	require.NoError(t, l.CheckOTPVerify(ctx, "password-change", "u@example.com"))
}

func TestDisabledLimitsNeverTrip(t *testing.T) {
	l, _ := newLimiterTest(t, Config{})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, l.CheckOTPIssue(ctx, "admin-login", "root"))
		require.NoError(t, l.RecordOTPFailure(ctx, "admin-login", "root"))
		require.NoError(t, l.CheckOTPVerify(ctx, "admin-login", "root"))
		require.NoError(t, l.CheckRefresh(ctx, "sid"))
	}
}

func TestRefreshPerMinute(t *testing.T) {
	l, mr := newLimiterTest(t, Config{RefreshPerMinute: 1})
	ctx := context.Background()

	require.NoError(t, l.CheckRefresh(ctx, "sid"))
	assert.ErrorIs(t, l.CheckRefresh(ctx, "sid"), ErrRateLimited)
	mr.FastForward(time.Minute)
	require.NoError(t, l.CheckRefresh(ctx, "sid"))
}

func TestLimiterRedisFailure(t *testing.T) {
	l, mr := newLimiterTest(t, Config{OTPIssuePerWindow: 1})
	mr.Close()
	assert.ErrorIs(t, l.CheckOTPIssue(context.Background(), "admin-login", "root"), ErrRedisUnavailable)
}
