package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	OTP       OTPConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Cookie    CookieConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures HS256 token signing.
type JWTConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secret     []byte
	Issuer     string
	Audience   string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authcore APIs.
type SessionConfig struct {
	RedisPrefix string
	// RotateOnRefresh replaces the session with a new id and refresh token on
	// every refresh and deletes the old one.
	RotateOnRefresh bool
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig sets the validity window per challenge purpose.
type OTPConfig struct {
	AdminTTL    time.Duration
	PasswordTTL time.Duration
	// DefaultTTL applies to purposes other than the built-in ones.
	DefaultTTL time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines a public type used by authcore APIs.
//
// A zero limit disables the corresponding throttle.
type RateLimitConfig struct {
	OTPIssuePerWindow int
	OTPVerifyFailures int
	OTPWindow         time.Duration
	RefreshPerMinute  int
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds every Redis round trip made by the Engine.
type StoreConfig struct {
	OperationTimeout time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by authcore APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authcore APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig names the cookie that middleware.Guard promotes to a bearer token.
type CookieConfig struct {
	AccessTokenName string
}

// DefaultConfig returns the defaults every other setting is layered on.
// The signing secret is left empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  900 * time.Second,
			RefreshTTL: 604800 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:     "ac",
			RotateOnRefresh: false,
		},
		OTP: OTPConfig{
			AdminTTL:    300 * time.Second,
			PasswordTTL: 300 * time.Second,
			DefaultTTL:  300 * time.Second,
		},
		RateLimit: RateLimitConfig{
			OTPIssuePerWindow: 5,
			OTPVerifyFailures: 5,
			OTPWindow:         15 * time.Minute,
			RefreshPerMinute:  0,
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Cookie: CookieConfig{
			AccessTokenName: "access_token",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first setting that cannot produce a working Engine.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("access TTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("refresh TTL must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if len(c.JWT.Secret) < jwt.MinSecretLength {
		return errors.New("jwt secret must be at least 32 bytes")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("redis prefix must not be empty")
	}

	// OTP
	if c.OTP.AdminTTL <= 0 || c.OTP.PasswordTTL <= 0 || c.OTP.DefaultTTL <= 0 {
		return errors.New("otp TTLs must be > 0")
	}

	// Rate limits
	if c.RateLimit.OTPIssuePerWindow < 0 || c.RateLimit.OTPVerifyFailures < 0 || c.RateLimit.RefreshPerMinute < 0 {
		return errors.New("rate limits must be >= 0")
	}
	if (c.RateLimit.OTPIssuePerWindow > 0 || c.RateLimit.OTPVerifyFailures > 0) && c.RateLimit.OTPWindow <= 0 {
		return errors.New("otp rate limit window must be > 0")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("store operation timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be > 0 when audit is enabled")
	}

	if c.Cookie.AccessTokenName == "" {
		return errors.New("access token cookie name must not be empty")
	}

	return nil
}
