package authcore

import (
	"context"
	"strings"
)

// BeginAdminLogin starts the OTP step of an admin login. The caller must
// already have verified the principal's primary credential. The code is
// keyed on the normalized Subject and mailed to it; if delivery fails the
// code is discarded and [ErrOTPDeliveryFailed] is returned.
func (e *Engine) BeginAdminLogin(ctx context.Context, p Principal) error {
	if err := e.ready(); err != nil {
		return err
	}
	subject, err := otpKey(OTPPurposeAdminLogin, p.Subject)
	if err != nil || p.UserID <= 0 {
		return ErrInvalidRequest
	}
	return e.issueAndDeliver(ctx, OTPPurposeAdminLogin, subject, p.Name)
}

// CompleteAdminLogin consumes the admin-login code and, on success, issues a
// session exactly like [Engine.IssueSession].
func (e *Engine) CompleteAdminLogin(ctx context.Context, p Principal, code string) (*SessionResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	subject, err := otpKey(OTPPurposeAdminLogin, p.Subject)
	if err != nil || p.UserID <= 0 || strings.TrimSpace(code) == "" {
		return nil, ErrInvalidRequest
	}

	if err := e.consumeOTP(ctx, OTPPurposeAdminLogin, subject, code); err != nil {
		return nil, err
	}

	res, err := e.issueSession(ctx, p)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricAdminLoginSuccess)
	e.emitAudit(ctx, auditEventAdminLoginSuccess, true, p.UserID, subject, res.SessionID, nil, nil)
	return res, nil
}
