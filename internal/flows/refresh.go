package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureRateLimited
	RefreshFailureSessionNotFound
	RefreshFailureInvalidToken
	RefreshFailureUserNotFound
	RefreshFailureUserLookup
	RefreshFailureIssue
	RefreshFailureStore
)

// RefreshResult carries either a new access token or failure metadata.
type RefreshResult struct {
	Failure           RefreshFailureKind
	IssueFailure      IssueFailureKind
	Err               error
	UserID            int64
	SessionID         string
	PreviousSessionID string
	AccessToken       string
	JTI               string
	AccessExpiresAt   time.Time
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, sessionID string) error
}

type RefreshSessionStore interface {
	SessionWriter
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Delete(ctx context.Context, userID int64, sessionID string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh func(string) (*jwt.RefreshClaims, error)
	LookupUser   func(ctx context.Context, userID int64) (Principal, error)
	Rotate       bool
	Issue        IssueDeps
	RateLimiter  RefreshRateLimiter
	SessionStore RefreshSessionStore
	Warn         func(string, ...any)

	RateLimited     error
	SessionNotFound error
	UserNotFound    error
}

// RunRefresh resolves sessionID to its refresh token, verifies it and mints a
// new access token for the same user. A token-level failure kills the session.
func RunRefresh(ctx context.Context, sessionID string, deps RefreshDeps) RefreshResult {
	if sessionID == "" {
		return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: deps.SessionNotFound}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, sessionID); err != nil {
			kind := RefreshFailureStore
			if errors.Is(err, deps.RateLimited) {
				kind = RefreshFailureRateLimited
			}
			return RefreshResult{Failure: kind, Err: err, SessionID: sessionID}
		}
	}

	sess, err := deps.SessionStore.Get(ctx, sessionID)
	if err != nil {
		return refreshStoreFailure(err, sessionID, deps)
	}
	userID := sess.UserID

	claims, err := deps.ParseRefresh(sess.RefreshToken)
	if err == nil && (claims.SessionID != sessionID || claims.UserID != userID) {
		err = errors.New("refresh claims do not match session index")
	}
	if err != nil {
		killSession(ctx, userID, sessionID, deps)
		return RefreshResult{Failure: RefreshFailureInvalidToken, Err: err, UserID: userID, SessionID: sessionID}
	}

	principal, err := deps.LookupUser(ctx, userID)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			killSession(ctx, userID, sessionID, deps)
			return RefreshResult{Failure: RefreshFailureUserNotFound, Err: err, UserID: userID, SessionID: sessionID}
		}
		return RefreshResult{Failure: RefreshFailureUserLookup, Err: err, UserID: userID, SessionID: sessionID}
	}
	principal.UserID = userID
	if principal.Subject == "" {
		principal.Subject = claims.Subject
	}

	if deps.Rotate {
		return rotateSession(ctx, principal, sessionID, deps)
	}

	access, jti, exp, kind, err := RunMintAccess(principal, deps.Issue)
	if err != nil {
		return RefreshResult{
			Failure:      RefreshFailureIssue,
			IssueFailure: kind,
			Err:          err,
			UserID:       userID,
			SessionID:    sessionID,
		}
	}

	return RefreshResult{
		Failure:         RefreshFailureNone,
		UserID:          userID,
		SessionID:       sessionID,
		AccessToken:     access,
		JTI:             jti,
		AccessExpiresAt: exp,
	}
}

func rotateSession(ctx context.Context, p Principal, sessionID string, deps RefreshDeps) RefreshResult {
	issued := RunIssueSession(ctx, p, deps.Issue)
	if issued.Failure != IssueFailureNone {
		return RefreshResult{
			Failure:      RefreshFailureIssue,
			IssueFailure: issued.Failure,
			Err:          issued.Err,
			UserID:       p.UserID,
			SessionID:    sessionID,
		}
	}

	// The new session is already live; a failed cleanup only leaves the old
	// one to expire on its own TTL.
	if err := deps.SessionStore.Delete(ctx, p.UserID, sessionID); err != nil && deps.Warn != nil {
		deps.Warn("authcore: rotated session cleanup failed", "session_id", sessionID, "error", err)
	}

	return RefreshResult{
		Failure:           RefreshFailureNone,
		UserID:            p.UserID,
		SessionID:         issued.SessionID,
		PreviousSessionID: sessionID,
		AccessToken:       issued.AccessToken,
		JTI:               issued.JTI,
		AccessExpiresAt:   issued.AccessExpiresAt,
	}
}

func refreshStoreFailure(err error, sessionID string, deps RefreshDeps) RefreshResult {
	kind := RefreshFailureStore
	if deps.SessionNotFound != nil && errors.Is(err, deps.SessionNotFound) {
		kind = RefreshFailureSessionNotFound
	}
	return RefreshResult{Failure: kind, Err: err, SessionID: sessionID}
}

func killSession(ctx context.Context, userID int64, sessionID string, deps RefreshDeps) {
	if err := deps.SessionStore.Delete(ctx, userID, sessionID); err != nil && deps.Warn != nil {
		deps.Warn("authcore: failed to delete dead session", "session_id", sessionID, "error", err)
	}
}
