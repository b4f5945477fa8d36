package flows

import (
	"context"
	"errors"
	"time"
)

// IssueFailureKind classifies session issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureRandom
	IssueFailureSign
	IssueFailureStore
)

type SessionWriter interface {
	Put(ctx context.Context, userID int64, sessionID, refreshToken string, ttl time.Duration) error
}

// IssueDeps captures session issuance dependencies.
type IssueDeps struct {
	NewID         func() (string, error)
	CreateAccess  func(subject string, userID int64, name, role, jti string) (string, time.Time, error)
	CreateRefresh func(subject string, userID int64, sessionID string) (string, time.Time, error)
	Until         func(time.Time) time.Duration
	SessionStore  SessionWriter
}

// IssueResult carries a freshly admitted session or failure metadata. The
// refresh token is intentionally absent.
type IssueResult struct {
	Failure         IssueFailureKind
	Err             error
	SessionID       string
	AccessToken     string
	JTI             string
	AccessExpiresAt time.Time
}

// RunIssueSession mints an access and a refresh token under new random ids,
// persists the session and only then hands the access token back.
func RunIssueSession(ctx context.Context, p Principal, deps IssueDeps) IssueResult {
	sessionID, err := deps.NewID()
	if err != nil {
		return IssueResult{Failure: IssueFailureRandom, Err: err}
	}
	jti, err := deps.NewID()
	if err != nil {
		return IssueResult{Failure: IssueFailureRandom, Err: err, SessionID: sessionID}
	}

	access, accessExp, err := deps.CreateAccess(p.Subject, p.UserID, p.Name, p.Role, jti)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err, SessionID: sessionID}
	}
	refresh, refreshExp, err := deps.CreateRefresh(p.Subject, p.UserID, sessionID)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err, SessionID: sessionID}
	}

	ttl := deps.Until(refreshExp)
	if ttl <= 0 {
		return IssueResult{Failure: IssueFailureSign, Err: errors.New("refresh token already expired"), SessionID: sessionID}
	}
	if err := deps.SessionStore.Put(ctx, p.UserID, sessionID, refresh, ttl); err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err, SessionID: sessionID}
	}

	return IssueResult{
		Failure:         IssueFailureNone,
		SessionID:       sessionID,
		AccessToken:     access,
		JTI:             jti,
		AccessExpiresAt: accessExp,
	}
}

// RunMintAccess issues a new access token with a fresh jti for an existing session.
func RunMintAccess(p Principal, deps IssueDeps) (token, jti string, exp time.Time, kind IssueFailureKind, err error) {
	jti, err = deps.NewID()
	if err != nil {
		return "", "", time.Time{}, IssueFailureRandom, err
	}
	token, exp, err = deps.CreateAccess(p.Subject, p.UserID, p.Name, p.Role, jti)
	if err != nil {
		return "", "", time.Time{}, IssueFailureSign, err
	}
	return token, jti, exp, IssueFailureNone, nil
}
