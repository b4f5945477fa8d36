package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal"
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use: after a successful
// [Builder.Build] every further call returns an error.
type Builder struct {
	config       Config
	redis        redis.UniversalClient
	userProvider UserProvider
	mailer       Mailer
	random       RandomSource
	logger       *slog.Logger
	auditSink    AuditSink
	now          func() time.Time
	built        bool
}

// New starts a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Start from [DefaultConfig]
// or [ConfigFromEnv] to keep unspecified defaults.
func (b *Builder) WithConfig(cfg Config) *Builder {
	if b.built {
		return b
	}
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client shared by the session, OTP and rate-limit stores.
// The client must address a single primary, directly or through Sentinel;
// [Builder.Build] rejects a *redis.ClusterClient.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	if b.built {
		return b
	}
	b.redis = client
	return b
}

// WithUserProvider describes the withuserprovider operation and its observable behavior.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	if b.built {
		return b
	}
	b.userProvider = up
	return b
}

// WithMailer sets the out-of-band channel for OTP codes and notices.
// Without a mailer, admin login and password flows fail with [ErrMailerRequired].
func (b *Builder) WithMailer(m Mailer) *Builder {
	if b.built {
		return b
	}
	b.mailer = m
	return b
}

// WithRandomSource overrides the crypto/rand + UUIDv4 default, mainly for tests.
func (b *Builder) WithRandomSource(r RandomSource) *Builder {
	if b.built {
		return b
	}
	b.random = r
	return b
}

// WithLogger sets the logger for best-effort failures. Defaults to slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	if b.built {
		return b
	}
	b.logger = l
	return b
}

// WithClock overrides the token clock. Redis TTLs still follow the server clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	if b.built {
		return b
	}
	b.now = now
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if b.built {
		return b
	}
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	if b.built {
		return b
	}
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	if b.built {
		return b
	}
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. The returned
// Engine owns a copy of the configuration.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if _, ok := b.redis.(*redis.ClusterClient); ok {
		return nil, errors.New("redis cluster is not supported: session keys span hash slots")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider is required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	random := b.random
	if random == nil {
		random = internal.CryptoSource{}
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Secret:     cloneBytes(cfg.JWT.Secret),
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Now:        b.now,
	})
	if err != nil {
		return nil, err
	}

	prefix := cfg.Session.RedisPrefix
	timeout := cfg.Store.OperationTimeout

	engine := &Engine{
		config:       cfg,
		jwtManager:   jm,
		sessionStore: session.NewStore(b.redis, prefix, session.WithOperationTimeout(timeout)),
		otpStore:     stores.NewOTPChallengeStore(b.redis, prefix, timeout),
		rateLimiter: rate.New(b.redis, rate.Config{
			Prefix:            prefix,
			OTPIssuePerWindow: cfg.RateLimit.OTPIssuePerWindow,
			OTPVerifyFailures: cfg.RateLimit.OTPVerifyFailures,
			OTPWindow:         cfg.RateLimit.OTPWindow,
			RefreshPerMinute:  cfg.RateLimit.RefreshPerMinute,
			OperationTimeout:  timeout,
		}),
		userProvider: b.userProvider,
		mailer:       b.mailer,
		random:       random,
		logger:       logger,
		metrics:      NewMetrics(cfg.Metrics),
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)
	engine.initFlowDeps()

	b.built = true

	return engine, nil
}
