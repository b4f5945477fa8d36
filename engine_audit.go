package authcore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
)

const (
	auditEventSessionIssued       = "session_issued"
	auditEventSessionIssueFailure = "session_issue_failure"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshRateLimited  = "refresh_rate_limited"
	auditEventLogoutSession       = "logout_session"
	auditEventLogoutAll           = "logout_all"
	auditEventSessionRevoked      = "session_revoked"
	auditEventAuthenticateFailure = "authenticate_failure"
	auditEventOTPIssued           = "otp_issued"
	auditEventOTPDeliveryFailed   = "otp_delivery_failed"
	auditEventOTPConsumed         = "otp_consumed"
	auditEventOTPFailure          = "otp_failure"
	auditEventOTPCancelled        = "otp_cancelled"
	auditEventAdminLoginSuccess   = "admin_login_success"
	auditEventPasswordChange      = "password_change"
	auditEventPasswordReset       = "password_reset"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
)

// AuditErrorCode is the coarse, secret-free failure label attached to audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized      AuditErrorCode = "unauthorized"
	auditErrSessionExpired    AuditErrorCode = "session_expired"
	auditErrUserNotFound      AuditErrorCode = "user_not_found"
	auditErrOTPExpired        AuditErrorCode = "otp_expired"
	auditErrOTPInvalid        AuditErrorCode = "otp_invalid"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrDeliveryFailed    AuditErrorCode = "delivery_failed"
	auditErrTokenGeneration   AuditErrorCode = "token_generation"
	auditErrNotAllowed        AuditErrorCode = "not_allowed"
	auditErrInvalidRequest    AuditErrorCode = "invalid_request"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
	auditErrCredentialUpdate  AuditErrorCode = "credential_update_failed"
	auditErrInvalidCredential AuditErrorCode = "invalid_credentials"
)

// NewSlogSink creates a sink that logs every audit event at level.
func NewSlogSink(logger *slog.Logger, level slog.Level) *SlogSink {
	return internalaudit.NewSlogSink(logger, level)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID int64,
	subject string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Subject:   subject,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if userID != 0 {
		event.UserID = strconv.FormatInt(userID, 10)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, subject string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, 0, subject, "", nil, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPInvalid):
		return auditErrOTPInvalid
	case errors.Is(err, ErrOTPRateLimited), errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrOTPDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrTokenGeneration):
		return auditErrTokenGeneration
	case errors.Is(err, ErrPasswordChangeNotAllowed):
		return auditErrNotAllowed
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredential
	case errors.Is(err, errCredentialUpdate):
		return auditErrCredentialUpdate
	default:
		return auditErrInternal
	}
}
