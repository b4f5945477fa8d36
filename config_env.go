package authcore

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigFromEnv overlays environment variables on [DefaultConfig]. Only
// variables that are set are applied; the result is not validated.
//
// Env surface (prefix defaults to AUTHCORE):
//   - {P}_JWT_SECRET, {P}_JWT_ISSUER, {P}_JWT_AUDIENCE
//   - {P}_ACCESS_TTL, {P}_REFRESH_TTL (Go durations or seconds)
//   - {P}_REDIS_PREFIX, {P}_ROTATE_ON_REFRESH (true/false)
//   - {P}_OTP_ADMIN_TTL, {P}_OTP_PASSWORD_TTL
//   - {P}_OTP_ISSUE_PER_WINDOW, {P}_OTP_VERIFY_FAILURES, {P}_OTP_WINDOW
//   - {P}_REFRESH_PER_MINUTE
//   - {P}_STORE_TIMEOUT
//   - {P}_AUDIT_ENABLED, {P}_METRICS_ENABLED
//   - {P}_COOKIE_NAME
func ConfigFromEnv(prefix string) (Config, error) {
	if prefix == "" {
		prefix = "AUTHCORE"
	}
	cfg := defaultConfig()
	key := func(name string) string { return prefix + "_" + name }

	if v, ok := os.LookupEnv(key("JWT_SECRET")); ok {
		cfg.JWT.Secret = []byte(v)
	}
	if v, ok := os.LookupEnv(key("JWT_ISSUER")); ok {
		cfg.JWT.Issuer = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(key("JWT_AUDIENCE")); ok {
		cfg.JWT.Audience = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(key("REDIS_PREFIX")); ok {
		cfg.Session.RedisPrefix = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(key("COOKIE_NAME")); ok {
		cfg.Cookie.AccessTokenName = strings.TrimSpace(v)
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"ACCESS_TTL", &cfg.JWT.AccessTTL},
		{"REFRESH_TTL", &cfg.JWT.RefreshTTL},
		{"OTP_ADMIN_TTL", &cfg.OTP.AdminTTL},
		{"OTP_PASSWORD_TTL", &cfg.OTP.PasswordTTL},
		{"OTP_WINDOW", &cfg.RateLimit.OTPWindow},
		{"STORE_TIMEOUT", &cfg.Store.OperationTimeout},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(key(d.name))
		if !ok {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key(d.name), err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"OTP_ISSUE_PER_WINDOW", &cfg.RateLimit.OTPIssuePerWindow},
		{"OTP_VERIFY_FAILURES", &cfg.RateLimit.OTPVerifyFailures},
		{"REFRESH_PER_MINUTE", &cfg.RateLimit.RefreshPerMinute},
	}
	for _, n := range ints {
		v, ok := os.LookupEnv(key(n.name))
		if !ok {
			continue
		}
		parsed, err := atoiNonNegative(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key(n.name), err)
		}
		*n.dst = parsed
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"ROTATE_ON_REFRESH", &cfg.Session.RotateOnRefresh},
		{"AUDIT_ENABLED", &cfg.Audit.Enabled},
		{"METRICS_ENABLED", &cfg.Metrics.Enabled},
	}
	for _, b := range bools {
		v, ok := os.LookupEnv(key(b.name))
		if !ok {
			continue
		}
		parsed, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key(b.name), err)
		}
		*b.dst = parsed
	}

	return cfg, nil
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("must be > 0")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("not a duration")
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}
	return d, nil
}

func atoiNonNegative(s string) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if i64 < 0 {
		return 0, fmt.Errorf("must be >= 0")
	}
	return int(i64), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean")
	}
}
