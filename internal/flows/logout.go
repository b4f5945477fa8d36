package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// LogoutFailureKind classifies logout flow failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureSessionNotFound
	LogoutFailureStore
)

type LogoutSessionStore interface {
	Blacklist(ctx context.Context, jti string, ttl time.Duration) error
	ResolveUser(ctx context.Context, sessionID string) (int64, error)
	Delete(ctx context.Context, userID int64, sessionID string) error
	DeleteBySessionID(ctx context.Context, sessionID string) (int64, bool, error)
	DeleteAllForUser(ctx context.Context, userID int64) (int, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseAccess     func(string) (*jwt.AccessClaims, error)
	Until           func(time.Time) time.Duration
	SessionStore    LogoutSessionStore
	SessionNotFound error
}

// LogoutResult reports what a logout actually tore down.
type LogoutResult struct {
	Failure    LogoutFailureKind
	Err        error
	UserID     int64
	SessionID  string
	RevokedJTI string
	Removed    int
}

// RunLogout blacklists the presented access token for its remaining lifetime
// when it still verifies, then deletes sessionID if one was given. Unverifiable
// tokens and unknown sessions are skipped, so repeated calls are harmless.
func RunLogout(ctx context.Context, accessToken, sessionID string, deps LogoutDeps) LogoutResult {
	res := LogoutResult{SessionID: sessionID}

	if err := revokeAccess(ctx, accessToken, deps, &res); err != nil {
		return res
	}

	if sessionID == "" {
		return res
	}
	userID, found, err := deps.SessionStore.DeleteBySessionID(ctx, sessionID)
	if err != nil {
		res.Failure = LogoutFailureStore
		res.Err = err
		return res
	}
	if found {
		res.UserID = userID
		res.Removed = 1
	}
	return res
}

// RunLogoutAll applies the same blacklist step and then removes every session
// of userID. Other devices' access tokens stay valid until they expire.
func RunLogoutAll(ctx context.Context, userID int64, accessToken string, deps LogoutDeps) LogoutResult {
	res := LogoutResult{UserID: userID}

	if err := revokeAccess(ctx, accessToken, deps, &res); err != nil {
		return res
	}

	removed, err := deps.SessionStore.DeleteAllForUser(ctx, userID)
	if err != nil {
		res.Failure = LogoutFailureStore
		res.Err = err
		return res
	}
	res.UserID = userID
	res.Removed = removed
	return res
}

// RunRevokeSession deletes one session after checking it belongs to userID.
// Sessions owned by someone else are reported as not found.
func RunRevokeSession(ctx context.Context, userID int64, sessionID string, deps LogoutDeps) LogoutResult {
	res := LogoutResult{UserID: userID, SessionID: sessionID}

	owner, err := deps.SessionStore.ResolveUser(ctx, sessionID)
	if err != nil {
		res.Err = err
		res.Failure = LogoutFailureStore
		if deps.SessionNotFound != nil && errors.Is(err, deps.SessionNotFound) {
			res.Failure = LogoutFailureSessionNotFound
		}
		return res
	}
	if owner != userID {
		res.Failure = LogoutFailureSessionNotFound
		res.Err = deps.SessionNotFound
		return res
	}

	if err := deps.SessionStore.Delete(ctx, userID, sessionID); err != nil {
		res.Failure = LogoutFailureStore
		res.Err = err
		return res
	}
	res.Removed = 1
	return res
}

func revokeAccess(ctx context.Context, accessToken string, deps LogoutDeps, res *LogoutResult) error {
	if accessToken == "" {
		return nil
	}
	claims, err := deps.ParseAccess(accessToken)
	if err != nil {
		return nil
	}

	ttl := deps.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := deps.SessionStore.Blacklist(ctx, claims.ID, ttl); err != nil {
		res.Failure = LogoutFailureStore
		res.Err = err
		return err
	}
	res.RevokedJTI = claims.ID
	if res.UserID == 0 {
		res.UserID = claims.UserID
	}
	return nil
}
