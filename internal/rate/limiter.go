package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters. A non-positive limit disables
// the corresponding check.
type Config struct {
	Prefix            string
	OTPIssuePerWindow int
	OTPVerifyFailures int
	OTPWindow         time.Duration
	RefreshPerMinute  int
	// OperationTimeout bounds each check when positive.
	OperationTimeout time.Duration
}

// Limiter enforces fixed-window throttles for OTP issuance, wrong OTP codes
// and refresh calls using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "ac"
	}
	if cfg.OTPWindow <= 0 {
		cfg.OTPWindow = 15 * time.Minute
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) otpIssueKey(purpose, subject string) string {
	return l.config.Prefix + ":rl:oi:" + purpose + ":" + subject
}

func (l *Limiter) otpFailKey(purpose, subject string) string {
	return l.config.Prefix + ":rl:of:" + purpose + ":" + subject
}

func (l *Limiter) refreshKey(sessionID string) string {
	return l.config.Prefix + ":rl:rf:" + sessionID
}

// CheckOTPIssue counts one issuance for (purpose, subject) and fails once the
// window budget is exhausted.
func (l *Limiter) CheckOTPIssue(ctx context.Context, purpose, subject string) error {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if l.config.OTPIssuePerWindow <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.otpIssueKey(purpose, subject), l.config.OTPWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.OTPIssuePerWindow) {
		return ErrRateLimited
	}
	return nil
}

// RefundOTPIssue gives back one issuance counted by CheckOTPIssue, for codes
// that were never delivered. The window's expiry is left as is.
func (l *Limiter) RefundOTPIssue(ctx context.Context, purpose, subject string) error {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if l.config.OTPIssuePerWindow <= 0 {
		return nil
	}

	key := l.otpIssueKey(purpose, subject)
	count, err := l.redis.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// An empty counter holds no budget. This also drops the key DECR creates
	// when the window lapsed in between.
	if count <= 0 {
		if err := l.redis.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// CheckOTPVerify fails when (purpose, subject) already used up its wrong-code
// budget. It does not count the current attempt.
func (l *Limiter) CheckOTPVerify(ctx context.Context, purpose, subject string) error {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if l.config.OTPVerifyFailures <= 0 {
		return nil
	}

	count, err := l.redis.Get(ctx, l.otpFailKey(purpose, subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.OTPVerifyFailures) {
		return ErrRateLimited
	}
	return nil
}

// RecordOTPFailure counts one wrong code for (purpose, subject).
func (l *Limiter) RecordOTPFailure(ctx context.Context, purpose, subject string) error {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if l.config.OTPVerifyFailures <= 0 {
		return nil
	}

	_, err := l.incrementWithTTL(ctx, l.otpFailKey(purpose, subject), l.config.OTPWindow)
	return err
}

// ResetOTPFailures clears the wrong-code counter, typically after a fresh
// code has been issued or the current one was accepted.
func (l *Limiter) ResetOTPFailures(ctx context.Context, purpose, subject string) error {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if err := l.redis.Del(ctx, l.otpFailKey(purpose, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckRefresh enforces the per-session refresh budget by incrementing the
// counter for a one-minute window.
func (l *Limiter) CheckRefresh(ctx context.Context, sessionID string) error {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if l.config.RefreshPerMinute <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.refreshKey(sessionID), time.Minute)
	if err != nil {
		return err
	}
	if count > int64(l.config.RefreshPerMinute) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.config.OperationTimeout)
}
