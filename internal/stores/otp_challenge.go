package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPNotFound         = errors.New("otp challenge not found")
	ErrOTPMismatch         = errors.New("otp code mismatch")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// OTPChallengeStore persists one-time codes keyed by purpose and subject.
// Subjects are expected to be normalized by the caller.
type OTPChallengeStore struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewOTPChallengeStore creates a store under prefix. A positive timeout
// bounds every call.
func NewOTPChallengeStore(redisClient redis.UniversalClient, prefix string, timeout time.Duration) *OTPChallengeStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &OTPChallengeStore{
		redis:   redisClient,
		prefix:  prefix,
		timeout: timeout,
	}
}

func (s *OTPChallengeStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *OTPChallengeStore) key(purpose, subject string) string {
	return s.prefix + ":otp:" + purpose + ":" + subject
}

// Save writes code for (purpose, subject), replacing any live challenge.
func (s *OTPChallengeStore) Save(ctx context.Context, purpose, subject, code string, ttl time.Duration) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if ttl <= 0 {
		return errors.New("otp ttl must be > 0")
	}
	if err := s.redis.Set(ctx, s.key(purpose, subject), code, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Get returns the live code for (purpose, subject).
func (s *OTPChallengeStore) Get(ctx context.Context, purpose, subject string) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	code, err := s.redis.Get(ctx, s.key(purpose, subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrOTPNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return code, nil
}

// Consume deletes the challenge if supplied matches the stored code. A
// mismatch leaves the challenge in place. Concurrent consumers of the same
// code race on WATCH, so at most one of them succeeds.
func (s *OTPChallengeStore) Consume(ctx context.Context, purpose, subject, supplied string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	const maxRetries = 4
	key := s.key(purpose, subject)
	supplied = strings.TrimSpace(supplied)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.Get(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrOTPNotFound
				}
				return err
			}

			if len(supplied) != len(stored) || subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) != 1 {
				return ErrOTPMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrOTPMismatch):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
			}
		}
		return nil
	}

	// Another consumer kept winning the race; the code is gone or replaced.
	return ErrOTPNotFound
}

// Delete removes the challenge. Deleting a missing challenge is not an error.
func (s *OTPChallengeStore) Delete(ctx context.Context, purpose, subject string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.redis.Del(ctx, s.key(purpose, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// TTL returns the remaining lifetime of a live challenge.
func (s *OTPChallengeStore) TTL(ctx context.Context, purpose, subject string) (time.Duration, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ttl, err := s.redis.PTTL(ctx, s.key(purpose, subject)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	if ttl < 0 {
		return 0, ErrOTPNotFound
	}
	return ttl, nil
}
