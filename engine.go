package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	jwtManager   *jwt.Manager
	sessionStore *session.Store
	otpStore     *stores.OTPChallengeStore
	rateLimiter  *rate.Limiter
	userProvider UserProvider
	mailer       Mailer
	random       RandomSource
	logger       *slog.Logger
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	flowDeps     flows.Deps
}

// Close flushes pending audit events. The Redis client belongs to the caller
// and is left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AccessCookieName is the cookie middleware.Guard promotes to a bearer token.
func (e *Engine) AccessCookieName() string {
	if e == nil {
		return ""
	}
	return e.config.Cookie.AccessTokenName
}

// Health pings Redis through the session store.
func (e *Engine) Health(ctx context.Context) (HealthReport, error) {
	if err := e.ready(); err != nil {
		return HealthReport{}, err
	}
	latency, err := e.sessionStore.Ping(ctx)
	report := HealthReport{
		RedisLatency: latency,
		AuditDropped: e.AuditDropped(),
	}
	if err != nil {
		return report, storeErr(err)
	}
	return report, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) ready() error {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil || e.otpStore == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) initFlowDeps() {
	jm := e.jwtManager

	issue := flows.IssueDeps{
		NewID:         e.random.NewID,
		CreateAccess:  jm.CreateAccess,
		CreateRefresh: jm.CreateRefresh,
		Until:         jm.Until,
		SessionStore:  e.sessionStore,
	}

	e.flowDeps = flows.Deps{
		Issue: issue,
		Refresh: flows.RefreshDeps{
			ParseRefresh:    jm.ParseRefresh,
			LookupUser:      e.lookupUser,
			Rotate:          e.config.Session.RotateOnRefresh,
			Issue:           issue,
			RateLimiter:     e.rateLimiter,
			SessionStore:    e.sessionStore,
			Warn:            e.logger.Warn,
			RateLimited:     rate.ErrRateLimited,
			SessionNotFound: session.ErrSessionNotFound,
			UserNotFound:    ErrUserNotFound,
		},
		Logout: flows.LogoutDeps{
			ParseAccess:     jm.ParseAccess,
			Until:           jm.Until,
			SessionStore:    e.sessionStore,
			SessionNotFound: session.ErrSessionNotFound,
		},
		Authenticate: flows.AuthenticateDeps{
			ParseAccess: jm.ParseAccess,
			Blacklist:   e.sessionStore,
		},
		OTP: flows.OTPDeps{
			Store:       e.otpStore,
			Limiter:     e.rateLimiter,
			Intn:        e.random.Intn,
			TTL:         e.otpTTL,
			Warn:        e.logger.Warn,
			RateLimited: rate.ErrRateLimited,
			NotFound:    stores.ErrOTPNotFound,
			Mismatch:    stores.ErrOTPMismatch,
		},
	}
}

func (e *Engine) lookupUser(ctx context.Context, userID int64) (flows.Principal, error) {
	p, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return flows.Principal{}, err
	}
	return flowPrincipal(p), nil
}

func (e *Engine) otpTTL(purpose string) time.Duration {
	switch OTPPurpose(purpose) {
	case OTPPurposeAdminLogin:
		return e.config.OTP.AdminTTL
	case OTPPurposePasswordChange, OTPPurposePasswordReset:
		return e.config.OTP.PasswordTTL
	default:
		return e.config.OTP.DefaultTTL
	}
}

func flowPrincipal(p Principal) flows.Principal {
	return flows.Principal{
		UserID:  p.UserID,
		Subject: p.Subject,
		Name:    p.Name,
		Role:    p.Role,
	}
}

// normalizeSubject lowercases and trims challenge subjects so that case or
// whitespace variants share one key.
func normalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// storeErr keeps both the domain sentinel and the underlying cause visible to errors.Is.
func storeErr(err error) error {
	return errors.Join(ErrStoreUnavailable, err)
}

func tokenErr(err error) error {
	return fmt.Errorf("%w: %v", ErrTokenGeneration, err)
}

func issueFailureErr(kind flows.IssueFailureKind, err error) error {
	if kind == flows.IssueFailureStore {
		return storeErr(err)
	}
	return tokenErr(err)
}
