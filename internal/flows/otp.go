package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	otpFloor = 100000
	otpSpan  = 900000
)

// OTPFailureKind classifies OTP flow failures for root-level mapping.
type OTPFailureKind int

const (
	OTPFailureNone OTPFailureKind = iota
	OTPFailureRateLimited
	OTPFailureRandom
	OTPFailureStore
	OTPFailureDelivery
	OTPFailureExpired
	OTPFailureInvalid
)

type OTPStore interface {
	Save(ctx context.Context, purpose, subject, code string, ttl time.Duration) error
	Get(ctx context.Context, purpose, subject string) (string, error)
	TTL(ctx context.Context, purpose, subject string) (time.Duration, error)
	Consume(ctx context.Context, purpose, subject, supplied string) error
	Delete(ctx context.Context, purpose, subject string) error
}

type OTPLimiter interface {
	CheckOTPIssue(ctx context.Context, purpose, subject string) error
	RefundOTPIssue(ctx context.Context, purpose, subject string) error
	CheckOTPVerify(ctx context.Context, purpose, subject string) error
	RecordOTPFailure(ctx context.Context, purpose, subject string) error
	ResetOTPFailures(ctx context.Context, purpose, subject string) error
}

// OTPDeps captures OTP challenge dependencies.
type OTPDeps struct {
	Store   OTPStore
	Limiter OTPLimiter
	Intn    func(int64) (int64, error)
	TTL     func(purpose string) time.Duration
	Warn    func(string, ...any)

	RateLimited error
	NotFound    error
	Mismatch    error
}

// OTPDelivery hands a freshly stored code to an out-of-band channel.
type OTPDelivery func(ctx context.Context, code string, ttl time.Duration) error

// OTPResult carries the issued code or failure metadata.
type OTPResult struct {
	Failure OTPFailureKind
	Err     error
	Code    string
	TTL     time.Duration
}

// NewOTPCode returns a uniformly random six-digit code in [100000, 999999].
func NewOTPCode(intn func(int64) (int64, error)) (string, error) {
	n, err := intn(otpSpan)
	if err != nil {
		return "", err
	}
	if n < 0 || n >= otpSpan {
		return "", fmt.Errorf("random source returned %d outside [0, %d)", n, otpSpan)
	}
	return fmt.Sprintf("%06d", otpFloor+n), nil
}

// RunIssueOTP stores a new code for (purpose, subject), replacing any live one,
// and delivers it when deliver is set. A failed delivery removes the code again
// so no valid challenge exists that the holder never received, and hands the
// issuance back to the limiter.
func RunIssueOTP(ctx context.Context, purpose, subject string, deliver OTPDelivery, deps OTPDeps) OTPResult {
	if deps.Limiter != nil {
		if err := deps.Limiter.CheckOTPIssue(ctx, purpose, subject); err != nil {
			kind := OTPFailureStore
			if errors.Is(err, deps.RateLimited) {
				kind = OTPFailureRateLimited
			}
			return OTPResult{Failure: kind, Err: err}
		}
	}

	code, err := NewOTPCode(deps.Intn)
	if err != nil {
		return OTPResult{Failure: OTPFailureRandom, Err: err}
	}

	ttl := deps.TTL(purpose)
	if err := deps.Store.Save(ctx, purpose, subject, code, ttl); err != nil {
		return OTPResult{Failure: OTPFailureStore, Err: err}
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.ResetOTPFailures(ctx, purpose, subject); err != nil {
			warn(deps, "authcore: otp failure counter reset failed", "purpose", purpose, "error", err)
		}
	}

	if deliver != nil {
		if err := deliver(ctx, code, ttl); err != nil {
			if delErr := deps.Store.Delete(ctx, purpose, subject); delErr != nil {
				warn(deps, "authcore: otp rollback failed", "purpose", purpose, "error", delErr)
			}
			if deps.Limiter != nil {
				if refundErr := deps.Limiter.RefundOTPIssue(ctx, purpose, subject); refundErr != nil {
					warn(deps, "authcore: otp issue refund failed", "purpose", purpose, "error", refundErr)
				}
			}
			return OTPResult{Failure: OTPFailureDelivery, Err: err}
		}
	}

	return OTPResult{Failure: OTPFailureNone, Code: code, TTL: ttl}
}

// RunConsumeOTP accepts supplied exactly once. A wrong code keeps the
// challenge alive and counts against the failure budget.
func RunConsumeOTP(ctx context.Context, purpose, subject, supplied string, deps OTPDeps) OTPResult {
	if deps.Limiter != nil {
		if err := deps.Limiter.CheckOTPVerify(ctx, purpose, subject); err != nil {
			kind := OTPFailureStore
			if errors.Is(err, deps.RateLimited) {
				kind = OTPFailureRateLimited
			}
			return OTPResult{Failure: kind, Err: err}
		}
	}

	err := deps.Store.Consume(ctx, purpose, subject, supplied)
	switch {
	case err == nil:
	case errors.Is(err, deps.NotFound):
		return OTPResult{Failure: OTPFailureExpired, Err: err}
	case errors.Is(err, deps.Mismatch):
		if deps.Limiter != nil {
			if recErr := deps.Limiter.RecordOTPFailure(ctx, purpose, subject); recErr != nil {
				warn(deps, "authcore: otp failure counter update failed", "purpose", purpose, "error", recErr)
			}
		}
		return OTPResult{Failure: OTPFailureInvalid, Err: err}
	default:
		return OTPResult{Failure: OTPFailureStore, Err: err}
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.ResetOTPFailures(ctx, purpose, subject); err != nil {
			warn(deps, "authcore: otp failure counter reset failed", "purpose", purpose, "error", err)
		}
	}
	return OTPResult{Failure: OTPFailureNone}
}

// RunPeekOTP returns the live code and its remaining window without
// consuming it. A challenge that lapses between the two reads is expired.
func RunPeekOTP(ctx context.Context, purpose, subject string, deps OTPDeps) OTPResult {
	code, err := deps.Store.Get(ctx, purpose, subject)
	if err == nil {
		var ttl time.Duration
		if ttl, err = deps.Store.TTL(ctx, purpose, subject); err == nil {
			return OTPResult{Failure: OTPFailureNone, Code: code, TTL: ttl}
		}
	}
	if errors.Is(err, deps.NotFound) {
		return OTPResult{Failure: OTPFailureExpired, Err: err}
	}
	return OTPResult{Failure: OTPFailureStore, Err: err}
}

func warn(deps OTPDeps, msg string, args ...any) {
	if deps.Warn != nil {
		deps.Warn(msg, args...)
	}
}
