package authcore

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkAuthenticate(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	res, err := engine.IssueSession(context.Background(), alice)
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(context.Background(), res.AccessToken); err != nil {
			b.Fatalf("authenticate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	res, err := engine.IssueSession(context.Background(), alice)
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Refresh(context.Background(), res.SessionID); err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
	}
}

func BenchmarkRefreshRotating(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b, func(c *Config) { c.Session.RotateOnRefresh = true })
	defer cleanup()

	res, err := engine.IssueSession(context.Background(), alice)
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}
	sessionID := res.SessionID

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := engine.Refresh(context.Background(), sessionID)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		sessionID = next.SessionID
	}
}

func BenchmarkIssueAndLogout(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := engine.IssueSession(context.Background(), alice)
		if err != nil {
			b.Fatalf("issue failed: %v", err)
		}
		_ = engine.Logout(context.Background(), res.AccessToken, res.SessionID)
	}
}

func BenchmarkOTPIssueConsume(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		code, err := engine.IssueOTP(context.Background(), OTPPurposeAdminLogin, alice.Subject)
		if err != nil {
			b.Fatalf("issue failed: %v", err)
		}
		if err := engine.ConsumeOTP(context.Background(), OTPPurposeAdminLogin, alice.Subject, code); err != nil {
			b.Fatalf("consume failed: %v", err)
		}
	}
}

func newBenchmarkEngine(tb testing.TB, mutate ...func(*Config)) (*Engine, func()) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte(strings.Repeat("b", 32))
	cfg.RateLimit.OTPIssuePerWindow = 0
	cfg.RateLimit.OTPVerifyFailures = 0
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = false
	for _, fn := range mutate {
		fn(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(newFakeUsers(alice)).
		Build()
	if err != nil {
		tb.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}
