package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
)

// IssueOTP stores a fresh six-digit code for (purpose, subject), replacing any
// live one, and returns it for out-of-band delivery by the caller. Subjects
// are trimmed and lowercased.
func (e *Engine) IssueOTP(ctx context.Context, purpose OTPPurpose, subject string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	subject, err := otpKey(purpose, subject)
	if err != nil {
		return "", err
	}

	res := flows.RunIssueOTP(ctx, string(purpose), subject, nil, e.flowDeps.OTP)
	if res.Failure != flows.OTPFailureNone {
		return "", e.otpFailure(ctx, purpose, subject, res)
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, true, 0, subject, "", nil, purposeMeta(purpose))
	return res.Code, nil
}

// ConsumeOTP accepts code for (purpose, subject) exactly once. A missing
// challenge yields [ErrOTPExpired]; a wrong code yields [ErrOTPInvalid] and
// leaves the challenge in place.
func (e *Engine) ConsumeOTP(ctx context.Context, purpose OTPPurpose, subject, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	subject, err := otpKey(purpose, subject)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return ErrInvalidRequest
	}
	return e.consumeOTP(ctx, purpose, subject, code)
}

func (e *Engine) consumeOTP(ctx context.Context, purpose OTPPurpose, subject, code string) error {
	res := flows.RunConsumeOTP(ctx, string(purpose), subject, code, e.flowDeps.OTP)
	if res.Failure != flows.OTPFailureNone {
		return e.otpFailure(ctx, purpose, subject, res)
	}

	e.metricInc(MetricOTPConsumed)
	e.emitAudit(ctx, auditEventOTPConsumed, true, 0, subject, "", nil, purposeMeta(purpose))
	return nil
}

// PeekOTP returns the live code and how long it stays valid, without
// consuming it.
func (e *Engine) PeekOTP(ctx context.Context, purpose OTPPurpose, subject string) (string, time.Duration, error) {
	if err := e.ready(); err != nil {
		return "", 0, err
	}
	subject, err := otpKey(purpose, subject)
	if err != nil {
		return "", 0, err
	}

	res := flows.RunPeekOTP(ctx, string(purpose), subject, e.flowDeps.OTP)
	if res.Failure != flows.OTPFailureNone {
		return "", 0, mapOTPFailure(res)
	}
	return res.Code, res.TTL, nil
}

// CancelOTP removes any live challenge for (purpose, subject). Cancelling a
// missing challenge is not an error.
func (e *Engine) CancelOTP(ctx context.Context, purpose OTPPurpose, subject string) error {
	if err := e.ready(); err != nil {
		return err
	}
	subject, err := otpKey(purpose, subject)
	if err != nil {
		return err
	}

	if err := e.otpStore.Delete(ctx, string(purpose), subject); err != nil {
		e.metricInc(MetricStoreFailure)
		return storeErr(err)
	}
	e.emitAudit(ctx, auditEventOTPCancelled, true, 0, subject, "", nil, purposeMeta(purpose))
	return nil
}

// issueAndDeliver issues a code and hands it to the mailer. A failed delivery
// removes the code again before the error is returned.
func (e *Engine) issueAndDeliver(ctx context.Context, purpose OTPPurpose, subject, name string) error {
	if e.mailer == nil {
		return ErrMailerRequired
	}

	deliver := func(ctx context.Context, code string, ttl time.Duration) error {
		return e.mailer.SendOTP(ctx, OTPMessage{
			Purpose: purpose,
			To:      subject,
			Name:    name,
			Code:    code,
			TTL:     ttl,
		})
	}

	res := flows.RunIssueOTP(ctx, string(purpose), subject, deliver, e.flowDeps.OTP)
	if res.Failure != flows.OTPFailureNone {
		return e.otpFailure(ctx, purpose, subject, res)
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, true, 0, subject, "", nil, purposeMeta(purpose))
	return nil
}

func (e *Engine) otpFailure(ctx context.Context, purpose OTPPurpose, subject string, res flows.OTPResult) error {
	err := mapOTPFailure(res)

	event := auditEventOTPFailure
	switch res.Failure {
	case flows.OTPFailureRateLimited:
		e.metricInc(MetricOTPRateLimited)
		e.emitRateLimit(ctx, "otp:"+string(purpose), subject)
	case flows.OTPFailureExpired:
		e.metricInc(MetricOTPExpired)
	case flows.OTPFailureInvalid:
		e.metricInc(MetricOTPInvalid)
	case flows.OTPFailureDelivery:
		e.metricInc(MetricOTPDeliveryFailure)
		event = auditEventOTPDeliveryFailed
	case flows.OTPFailureStore:
		e.metricInc(MetricStoreFailure)
	}

	e.emitAudit(ctx, event, false, 0, subject, "", err, purposeMeta(purpose))
	return err
}

func mapOTPFailure(res flows.OTPResult) error {
	switch res.Failure {
	case flows.OTPFailureRateLimited:
		return ErrOTPRateLimited
	case flows.OTPFailureExpired:
		return ErrOTPExpired
	case flows.OTPFailureInvalid:
		return ErrOTPInvalid
	case flows.OTPFailureDelivery:
		return errors.Join(ErrOTPDeliveryFailed, res.Err)
	case flows.OTPFailureRandom:
		return tokenErr(res.Err)
	default:
		return storeErr(res.Err)
	}
}

// otpKey validates purpose and returns the normalized subject.
func otpKey(purpose OTPPurpose, subject string) (string, error) {
	if purpose == "" || strings.ContainsAny(string(purpose), ": ") {
		return "", ErrInvalidRequest
	}
	subject = normalizeSubject(subject)
	if subject == "" {
		return "", ErrInvalidRequest
	}
	return subject, nil
}

func purposeMeta(purpose OTPPurpose) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"purpose": string(purpose)}
	}
}
