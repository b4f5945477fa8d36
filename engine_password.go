package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// errCredentialUpdate wraps failures returned by a caller's [CredentialUpdate].
var errCredentialUpdate = errors.New("credential update failed")

// RequestPasswordChange mails a password-change code to the signed-in
// principal's Subject. Only local-credential principals may change a password.
func (e *Engine) RequestPasswordChange(ctx context.Context, p Principal) error {
	return e.requestPasswordOTP(ctx, OTPPurposePasswordChange, p)
}

// ConfirmPasswordChange consumes the code, runs update to store the new
// credential, then deletes every session of the user. A confirmation notice
// is sent on a best-effort basis.
func (e *Engine) ConfirmPasswordChange(ctx context.Context, p Principal, code string, update CredentialUpdate) error {
	return e.confirmPasswordOTP(ctx, OTPPurposePasswordChange, p, code, update)
}

// RequestPasswordReset mails a password-reset code to p.Subject. The caller
// resolves the account from the email; no session is required.
func (e *Engine) RequestPasswordReset(ctx context.Context, p Principal) error {
	return e.requestPasswordOTP(ctx, OTPPurposePasswordReset, p)
}

// ConfirmPasswordReset is the reset counterpart of [Engine.ConfirmPasswordChange].
func (e *Engine) ConfirmPasswordReset(ctx context.Context, p Principal, code string, update CredentialUpdate) error {
	return e.confirmPasswordOTP(ctx, OTPPurposePasswordReset, p, code, update)
}

func (e *Engine) requestPasswordOTP(ctx context.Context, purpose OTPPurpose, p Principal) error {
	if err := e.ready(); err != nil {
		return err
	}
	if p.Provider != ProviderLocal {
		return ErrPasswordChangeNotAllowed
	}
	subject, err := otpKey(purpose, p.Subject)
	if err != nil {
		return err
	}
	return e.issueAndDeliver(ctx, purpose, subject, p.Name)
}

func (e *Engine) confirmPasswordOTP(ctx context.Context, purpose OTPPurpose, p Principal, code string, update CredentialUpdate) error {
	if err := e.ready(); err != nil {
		return err
	}
	if p.Provider != ProviderLocal {
		return ErrPasswordChangeNotAllowed
	}
	subject, err := otpKey(purpose, p.Subject)
	if err != nil || p.UserID <= 0 || update == nil || strings.TrimSpace(code) == "" {
		return ErrInvalidRequest
	}

	if err := e.consumeOTP(ctx, purpose, subject, code); err != nil {
		return err
	}

	if err := update(ctx); err != nil {
		wrapped := fmt.Errorf("%w: %w", errCredentialUpdate, err)
		e.emitAudit(ctx, passwordEvent(purpose), false, p.UserID, subject, "", wrapped, nil)
		return wrapped
	}

	removed, err := e.sessionStore.DeleteAllForUser(ctx, p.UserID)
	if err != nil {
		e.metricInc(MetricStoreFailure)
		err = storeErr(err)
		e.emitAudit(ctx, passwordEvent(purpose), false, p.UserID, subject, "", err, nil)
		return err
	}

	e.sendNotice(ctx, purpose, subject, p.Name)

	if purpose == OTPPurposePasswordReset {
		e.metricInc(MetricPasswordResetSuccess)
	} else {
		e.metricInc(MetricPasswordChangeSuccess)
	}
	e.emitAudit(ctx, passwordEvent(purpose), true, p.UserID, subject, "", nil, func() map[string]string {
		return map[string]string{"sessions_removed": strconv.Itoa(removed)}
	})
	return nil
}

func (e *Engine) sendNotice(ctx context.Context, purpose OTPPurpose, to, name string) {
	if e.mailer == nil {
		return
	}
	kind := NoticePasswordChanged
	if purpose == OTPPurposePasswordReset {
		kind = NoticePasswordReset
	}
	if err := e.mailer.SendNotice(ctx, Notice{Kind: kind, To: to, Name: name}); err != nil {
		e.logger.Warn("authcore: confirmation notice failed", "kind", string(kind), "error", err)
	}
}

func passwordEvent(purpose OTPPurpose) string {
	if purpose == OTPPurposePasswordReset {
		return auditEventPasswordReset
	}
	return auditEventPasswordChange
}
