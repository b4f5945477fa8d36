package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
)

// Authenticate verifies a bearer token and checks it against the blacklist.
// Expired, forged and revoked tokens all fail with [ErrUnauthorized]. When the
// blacklist cannot be read the call fails closed with ErrUnauthorized joined
// with [ErrStoreUnavailable].
//
// bearer may carry a leading "Bearer " scheme.
//
//	Performance: 1 Redis round trip (EXISTS).
func (e *Engine) Authenticate(ctx context.Context, bearer string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricAuthenticateLatency, time.Since(start))
	}()

	token := stripBearer(bearer)
	if token == "" {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrUnauthorized
	}

	res := flows.RunAuthenticate(ctx, token, e.flowDeps.Authenticate)
	switch res.Failure {
	case flows.AuthenticateFailureNone:
	case flows.AuthenticateFailureStore:
		e.metricInc(MetricAuthenticateStoreFailure)
		e.metricInc(MetricStoreFailure)
		err := errors.Join(ErrUnauthorized, storeErr(res.Err))
		e.emitAudit(ctx, auditEventAuthenticateFailure, false, res.Claims.UserID, "", "", err, nil)
		return nil, err
	case flows.AuthenticateFailureRevoked:
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventAuthenticateFailure, false, res.Claims.UserID, "", "", ErrUnauthorized, func() map[string]string {
			return map[string]string{"reason": "revoked"}
		})
		return nil, ErrUnauthorized
	default:
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrUnauthorized
	}

	e.metricInc(MetricAuthenticateSuccess)
	c := res.Claims
	identity := &Identity{
		UserID:  c.UserID,
		Subject: c.Subject,
		Name:    c.FullName,
		Role:    c.Role,
		TokenID: c.ID,
	}
	if c.ExpiresAt != nil {
		identity.ExpiresAt = c.ExpiresAt.Time
	}
	return identity, nil
}

func stripBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		v = strings.TrimSpace(v[7:])
	}
	return v
}
