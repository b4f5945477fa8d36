package authcore

import (
	"context"
	"strconv"

	"github.com/MrEthical07/authcore/internal/flows"
)

// IssueSession admits p into a new session. Both tokens are signed, the
// session is persisted, and only then are the access token and session id
// returned. The refresh token never leaves the server.
func (e *Engine) IssueSession(ctx context.Context, p Principal) (*SessionResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if p.UserID <= 0 || p.Subject == "" {
		return nil, ErrInvalidRequest
	}
	return e.issueSession(ctx, p)
}

func (e *Engine) issueSession(ctx context.Context, p Principal) (*SessionResult, error) {
	res := flows.RunIssueSession(ctx, flowPrincipal(p), e.flowDeps.Issue)
	if res.Failure != flows.IssueFailureNone {
		err := issueFailureErr(res.Failure, res.Err)
		if res.Failure == flows.IssueFailureStore {
			e.metricInc(MetricStoreFailure)
		}
		e.metricInc(MetricSessionIssueFailure)
		e.emitAudit(ctx, auditEventSessionIssueFailure, false, p.UserID, p.Subject, res.SessionID, err, nil)
		return nil, err
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, true, p.UserID, p.Subject, res.SessionID, nil, nil)

	return &SessionResult{
		AccessToken:     res.AccessToken,
		SessionID:       res.SessionID,
		AccessExpiresIn: e.config.JWT.AccessTTL,
		AccessExpiresAt: res.AccessExpiresAt,
	}, nil
}

// Refresh mints a new access token for the session. Unknown sessions and
// sessions whose refresh token no longer verifies yield [ErrSessionExpired];
// the latter are deleted. With Session.RotateOnRefresh the session is
// replaced and the result carries the new id.
func (e *Engine) Refresh(ctx context.Context, sessionID string) (*RefreshResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := flows.RunRefresh(ctx, sessionID, e.flowDeps.Refresh)
	if res.Failure != flows.RefreshFailureNone {
		err := e.refreshFailure(ctx, res)
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, "", res.SessionID, nil, func() map[string]string {
		if res.PreviousSessionID == "" {
			return nil
		}
		return map[string]string{"previous_session_id": res.PreviousSessionID}
	})

	return &RefreshResult{
		AccessToken:     res.AccessToken,
		SessionID:       res.SessionID,
		AccessExpiresIn: e.config.JWT.AccessTTL,
		AccessExpiresAt: res.AccessExpiresAt,
	}, nil
}

func (e *Engine) refreshFailure(ctx context.Context, res flows.RefreshResult) error {
	var err error
	reason := ""

	switch res.Failure {
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, 0, "", res.SessionID, ErrRefreshRateLimited, nil)
		e.emitRateLimit(ctx, "refresh", "")
		return ErrRefreshRateLimited
	case flows.RefreshFailureSessionNotFound:
		err, reason = ErrSessionExpired, "session_not_found"
	case flows.RefreshFailureInvalidToken:
		e.metricInc(MetricSessionInvalidated)
		err, reason = ErrSessionExpired, "refresh_token_invalid"
	case flows.RefreshFailureUserNotFound:
		e.metricInc(MetricSessionInvalidated)
		err, reason = ErrUserNotFound, "user_not_found"
	case flows.RefreshFailureUserLookup:
		err, reason = res.Err, "user_lookup"
	case flows.RefreshFailureIssue:
		err, reason = issueFailureErr(res.IssueFailure, res.Err), "issue"
		if res.IssueFailure == flows.IssueFailureStore {
			e.metricInc(MetricStoreFailure)
		}
	default:
		e.metricInc(MetricStoreFailure)
		err, reason = storeErr(res.Err), "store"
	}

	e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", res.SessionID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}

// Logout blacklists the jti of accessToken, which may carry a Bearer scheme,
// for its remaining lifetime when it still verifies, then deletes sessionID
// when given. Unverifiable tokens and unknown sessions are skipped, so
// repeated calls succeed.
func (e *Engine) Logout(ctx context.Context, accessToken, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	res := flows.RunLogout(ctx, stripBearer(accessToken), sessionID, e.flowDeps.Logout)
	if res.Failure != flows.LogoutFailureNone {
		e.metricInc(MetricStoreFailure)
		err := storeErr(res.Err)
		e.emitAudit(ctx, auditEventLogoutSession, false, res.UserID, "", sessionID, err, nil)
		return err
	}

	if res.RevokedJTI != "" {
		e.metricInc(MetricTokenRevoked)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, res.UserID, "", sessionID, nil, func() map[string]string {
		return map[string]string{
			"token_revoked":   strconv.FormatBool(res.RevokedJTI != ""),
			"session_removed": strconv.FormatBool(res.Removed > 0),
		}
	})
	return nil
}

// LogoutAll blacklists accessToken like [Engine.Logout] and deletes every
// session of userID. Access tokens held by other devices remain valid until
// they expire.
func (e *Engine) LogoutAll(ctx context.Context, userID int64, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID <= 0 {
		return ErrInvalidRequest
	}

	res := flows.RunLogoutAll(ctx, userID, stripBearer(accessToken), e.flowDeps.Logout)
	if res.Failure != flows.LogoutFailureNone {
		e.metricInc(MetricStoreFailure)
		err := storeErr(res.Err)
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", "", err, nil)
		return err
	}

	if res.RevokedJTI != "" {
		e.metricInc(MetricTokenRevoked)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"sessions_removed": strconv.Itoa(res.Removed)}
	})
	return nil
}

// ListSessions returns the user's live sessions. Ids whose record has
// expired are pruned from the index as a side effect.
func (e *Engine) ListSessions(ctx context.Context, userID int64) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, ErrInvalidRequest
	}

	sessions, err := e.sessionStore.ActiveSessions(ctx, userID)
	if err != nil {
		e.metricInc(MetricStoreFailure)
		return nil, storeErr(err)
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{SessionID: s.SessionID, ExpiresIn: s.ExpiresIn})
	}
	return out, nil
}

// RevokeSession deletes one session of userID, typically another device.
// Sessions that do not exist or belong to someone else yield [ErrSessionExpired].
func (e *Engine) RevokeSession(ctx context.Context, userID int64, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID <= 0 || sessionID == "" {
		return ErrInvalidRequest
	}

	res := flows.RunRevokeSession(ctx, userID, sessionID, e.flowDeps.Logout)
	switch res.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureSessionNotFound:
		e.emitAudit(ctx, auditEventSessionRevoked, false, userID, "", sessionID, ErrSessionExpired, nil)
		return ErrSessionExpired
	default:
		e.metricInc(MetricStoreFailure)
		err := storeErr(res.Err)
		e.emitAudit(ctx, auditEventSessionRevoked, false, userID, "", sessionID, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, "", sessionID, nil, nil)
	return nil
}
