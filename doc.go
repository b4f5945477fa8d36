// Package authcore is a session and credential lifecycle core: HS256 access
// and refresh tokens, Redis-backed refresh sessions with a jti blacklist, and
// single-use OTP challenges for admin logins and password changes.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (SessionResult, Identity, MetricsSnapshot, etc.). Flow orchestration, OTP persistence,
// rate limiting and audit dispatch live under internal/ and are never exported. Token
// signing lives in jwt/ and Redis session state in session/.
//
// # Session model
//
// Clients hold an access token and an opaque session id. The refresh token stays in Redis
// under the session id and is only ever read by [Engine.Refresh]. Logging out blacklists the
// presented access token's jti for its remaining lifetime and deletes the session.
//
// # What this package must NOT do
//
//   - Hash or compare passwords. Credential storage is delegated to [CredentialUpdate].
//   - Decide application-level authorization from roles.
//   - Persist audit events. They are handed to an [AuditSink].
//   - Treat an unreachable store as "not revoked" or "session expired".
package authcore
