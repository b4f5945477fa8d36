package authcore

import "errors"

var (
	// ErrInvalidCredentials is returned when a caller-supplied credential cannot be accepted.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired is returned when a session id is unknown or its refresh token no longer verifies.
	ErrSessionExpired = errors.New("session expired")
	// ErrOTPExpired is returned when no challenge exists for the purpose and subject.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPInvalid is returned when the supplied code does not match the live challenge.
	ErrOTPInvalid = errors.New("otp invalid")
	// ErrOTPRateLimited is returned when issue or verify attempts exceed the configured budget.
	ErrOTPRateLimited = errors.New("otp rate limited")
	// ErrOTPDeliveryFailed is returned when the mailer could not hand off a code.
	ErrOTPDeliveryFailed = errors.New("otp delivery failed")
	// ErrTokenGeneration is returned when signing or random id generation fails.
	ErrTokenGeneration = errors.New("token generation failed")
	// ErrStoreUnavailable is returned when Redis could not complete an operation.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrUnauthorized is the uniform request rejection returned by Authenticate.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRefreshRateLimited is returned when a session refreshes faster than allowed.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrPasswordChangeNotAllowed is returned for principals not backed by a local credential.
	ErrPasswordChangeNotAllowed = errors.New("password change not allowed for provider")
	// ErrUserNotFound is returned when the user provider no longer knows the session's user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRequest is returned for empty or malformed arguments.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEngineNotReady is returned when a method is called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrMailerRequired is returned by OTP flows that must deliver a code when no Mailer is configured.
	ErrMailerRequired = errors.New("mailer is required")
)
