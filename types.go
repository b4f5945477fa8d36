package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
)

// Provider names the identity source that authenticated a principal.
type Provider string

const (
	// ProviderLocal marks principals that hold a local password credential.
	ProviderLocal Provider = "local"
	// ProviderOAuth2 marks principals verified by an external identity provider.
	ProviderOAuth2 Provider = "oauth2"
)

// Principal is an identity the caller has already authenticated by some
// external means. Subject is the stable identifier (typically the email)
// that OTP challenges are keyed on.
type Principal struct {
	UserID   int64
	Subject  string
	Name     string
	Role     string
	Provider Provider
}

// Identity is the verified view of a bearer token returned by
// [Engine.Authenticate].
type Identity struct {
	UserID    int64
	Subject   string
	Name      string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// SessionResult is returned by [Engine.IssueSession] and
// [Engine.CompleteAdminLogin]. The refresh token stays server-side.
type SessionResult struct {
	AccessToken     string
	SessionID       string
	AccessExpiresIn time.Duration
	AccessExpiresAt time.Time
}

// RefreshResult is returned by [Engine.Refresh]. SessionID differs from the
// requested one only when rotation is enabled.
type RefreshResult struct {
	AccessToken     string
	SessionID       string
	AccessExpiresIn time.Duration
	AccessExpiresAt time.Time
}

// SessionInfo describes one live session of a user.
type SessionInfo struct {
	SessionID string
	ExpiresIn time.Duration
}

// OTPPurpose scopes a one-time code to a single flow.
type OTPPurpose string

const (
	// OTPPurposeAdminLogin gates the second step of an admin login.
	OTPPurposeAdminLogin OTPPurpose = "admin-login"
	// OTPPurposePasswordChange gates a password change by a signed-in user.
	OTPPurposePasswordChange OTPPurpose = "password-change"
	// OTPPurposePasswordReset gates a password reset by email.
	OTPPurposePasswordReset OTPPurpose = "password-reset"
)

// OTPMessage is handed to the [Mailer] when a code must be delivered.
type OTPMessage struct {
	Purpose OTPPurpose
	To      string
	Name    string
	Code    string
	TTL     time.Duration
}

// NoticeKind identifies a best-effort confirmation message.
type NoticeKind string

const (
	NoticePasswordChanged NoticeKind = "password-changed"
	NoticePasswordReset   NoticeKind = "password-reset"
)

// Notice is a confirmation sent after a credential change. Failures to send
// it are logged and never fail the flow.
type Notice struct {
	Kind NoticeKind
	To   string
	Name string
}

// Mailer delivers one-time codes and notices out of band. Implementations
// are called synchronously from the issuing request.
type Mailer interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
	SendNotice(ctx context.Context, notice Notice) error
}

// UserProvider resolves the current display name and role for a user id.
// It must return [ErrUserNotFound] (or wrap it) when the user no longer exists.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID int64) (Principal, error)
}

// RandomSource produces session ids, token ids and OTP digits.
type RandomSource interface {
	NewID() (string, error)
	Intn(n int64) (int64, error)
}

// CredentialUpdate stores the new credential after an OTP-confirmed password
// change or reset. A returned error aborts the flow before sessions are revoked.
type CredentialUpdate func(ctx context.Context) error

// HealthReport is returned by [Engine.Health].
type HealthReport struct {
	RedisLatency time.Duration
	AuditDropped uint64
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine’s audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink writes audit events to a structured logger.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
