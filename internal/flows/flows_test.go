package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errNotFound    = errors.New("not found")
	errMismatch    = errors.New("mismatch")
	errLimited     = errors.New("limited")
	errUnavailable = errors.New("unavailable")
	errNoUser      = errors.New("no user")
)

type memSessions struct {
	mu        sync.Mutex
	tokens    map[string]string // "uid:sid" -> token
	owners    map[string]int64
	blacklist map[string]time.Duration
	failPut   bool
}

func newMemSessions() *memSessions {
	return &memSessions{
		tokens:    map[string]string{},
		owners:    map[string]int64{},
		blacklist: map[string]time.Duration{},
	}
}

func key(uid int64, sid string) string { return fmt.Sprintf("%d:%s", uid, sid) }

func (m *memSessions) Put(_ context.Context, uid int64, sid, tok string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return errUnavailable
	}
	m.tokens[key(uid, sid)] = tok
	m.owners[sid] = uid
	return nil
}

func (m *memSessions) ResolveUser(_ context.Context, sid string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.owners[sid]
	if !ok {
		return 0, errNotFound
	}
	return uid, nil
}

func (m *memSessions) Get(_ context.Context, sid string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.owners[sid]
	if !ok {
		return nil, errNotFound
	}
	tok, ok := m.tokens[key(uid, sid)]
	if !ok {
		return nil, errNotFound
	}
	return &session.Session{SessionID: sid, UserID: uid, RefreshToken: tok}, nil
}

func (m *memSessions) Delete(_ context.Context, uid int64, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key(uid, sid))
	delete(m.owners, sid)
	return nil
}

func (m *memSessions) DeleteBySessionID(ctx context.Context, sid string) (int64, bool, error) {
	uid, err := m.ResolveUser(ctx, sid)
	if err != nil {
		return 0, false, nil
	}
	return uid, true, m.Delete(ctx, uid, sid)
}

func (m *memSessions) DeleteAllForUser(_ context.Context, uid int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for sid, owner := range m.owners {
		if owner == uid {
			delete(m.owners, sid)
			delete(m.tokens, key(uid, sid))
			n++
		}
	}
	return n, nil
}

func (m *memSessions) Blacklist(_ context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklist[jti] = ttl
	return nil
}

func (m *memSessions) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blacklist[jti]
	return ok, nil
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

type flowFixture struct {
	mgr      *jwt.Manager
	sessions *memSessions
	issue    IssueDeps
	refresh  RefreshDeps
	logout   LogoutDeps
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	mgr, err := jwt.NewManager(jwt.Config{
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Secret:     []byte("flows-secret-flows-secret-flows-secret"),
	})
	require.NoError(t, err)

	sessions := newMemSessions()
	ids := &seqIDs{}
	issue := IssueDeps{
		NewID:         ids.NewID,
		CreateAccess:  mgr.CreateAccess,
		CreateRefresh: mgr.CreateRefresh,
		Until:         mgr.Until,
		SessionStore:  sessions,
	}
	users := map[int64]Principal{
		42: {UserID: 42, Subject: "ada@example.com", Name: "Ada", Role: "USER"},
	}
	return &flowFixture{
		mgr:      mgr,
		sessions: sessions,
		issue:    issue,
		refresh: RefreshDeps{
			ParseRefresh: mgr.ParseRefresh,
			LookupUser: func(_ context.Context, uid int64) (Principal, error) {
				p, ok := users[uid]
				if !ok {
					return Principal{}, errNoUser
				}
				return p, nil
			},
			Issue:           issue,
			SessionStore:    sessions,
			SessionNotFound: errNotFound,
			UserNotFound:    errNoUser,
			RateLimited:     errLimited,
		},
		logout: LogoutDeps{
			ParseAccess:     mgr.ParseAccess,
			Until:           mgr.Until,
			SessionStore:    sessions,
			SessionNotFound: errNotFound,
		},
	}
}

func TestIssueThenRefreshKeepsSession(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	issued := RunIssueSession(ctx, Principal{UserID: 42, Subject: "ada@example.com", Name: "Ada", Role: "USER"}, f.issue)
	require.Equal(t, IssueFailureNone, issued.Failure, "%v", issued.Err)

	res := RunRefresh(ctx, issued.SessionID, f.refresh)
	require.Equal(t, RefreshFailureNone, res.Failure, "%v", res.Err)
	assert.Equal(t, issued.SessionID, res.SessionID)
	assert.NotEqual(t, issued.JTI, res.JTI)

	claims, err := f.mgr.ParseAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, res.JTI, claims.ID)
}

func TestIssueStoreFailureReturnsNoToken(t *testing.T) {
	f := newFlowFixture(t)
	f.sessions.failPut = true

	issued := RunIssueSession(context.Background(), Principal{UserID: 42}, f.issue)
	assert.Equal(t, IssueFailureStore, issued.Failure)
	assert.Empty(t, issued.AccessToken)
}

func TestRefreshWithCorruptTokenKillsSession(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Put(ctx, 42, "sid-x", "not-a-token", time.Hour))

	res := RunRefresh(ctx, "sid-x", f.refresh)
	assert.Equal(t, RefreshFailureInvalidToken, res.Failure)

	_, err := f.sessions.ResolveUser(ctx, "sid-x")
	assert.ErrorIs(t, err, errNotFound)
}

func TestRefreshWithForeignSessionClaimsKillsSession(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	other, _, err := f.mgr.CreateRefresh("ada@example.com", 42, "sid-other")
	require.NoError(t, err)
	require.NoError(t, f.sessions.Put(ctx, 42, "sid-y", other, time.Hour))

	res := RunRefresh(ctx, "sid-y", f.refresh)
	assert.Equal(t, RefreshFailureInvalidToken, res.Failure)
}

func TestRefreshUnknownSession(t *testing.T) {
	f := newFlowFixture(t)
	assert.Equal(t, RefreshFailureSessionNotFound, RunRefresh(context.Background(), "nope", f.refresh).Failure)
	assert.Equal(t, RefreshFailureSessionNotFound, RunRefresh(context.Background(), "", f.refresh).Failure)
}

func TestRefreshDeletedUserKillsSession(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	issued := RunIssueSession(ctx, Principal{UserID: 7, Subject: "gone@example.com"}, f.issue)
	require.Equal(t, IssueFailureNone, issued.Failure)

	res := RunRefresh(ctx, issued.SessionID, f.refresh)
	assert.Equal(t, RefreshFailureUserNotFound, res.Failure)
	_, err := f.sessions.ResolveUser(ctx, issued.SessionID)
	assert.ErrorIs(t, err, errNotFound)
}

func TestRefreshRotationReplacesSession(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	f.refresh.Rotate = true

	issued := RunIssueSession(ctx, Principal{UserID: 42, Subject: "ada@example.com"}, f.issue)
	require.Equal(t, IssueFailureNone, issued.Failure)

	res := RunRefresh(ctx, issued.SessionID, f.refresh)
	require.Equal(t, RefreshFailureNone, res.Failure)
	assert.Equal(t, issued.SessionID, res.PreviousSessionID)
	assert.NotEqual(t, issued.SessionID, res.SessionID)

	_, err := f.sessions.ResolveUser(ctx, issued.SessionID)
	assert.ErrorIs(t, err, errNotFound)
	uid, err := f.sessions.ResolveUser(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
}

type limitAll struct{}

func (limitAll) CheckRefresh(context.Context, string) error { return errLimited }

func TestRefreshRateLimited(t *testing.T) {
	f := newFlowFixture(t)
	f.refresh.RateLimiter = limitAll{}
	assert.Equal(t, RefreshFailureRateLimited, RunRefresh(context.Background(), "sid", f.refresh).Failure)
}

func TestLogoutBlacklistsAndDeletes(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	issued := RunIssueSession(ctx, Principal{UserID: 42, Subject: "ada@example.com"}, f.issue)
	require.Equal(t, IssueFailureNone, issued.Failure)

	res := RunLogout(ctx, issued.AccessToken, issued.SessionID, f.logout)
	require.Equal(t, LogoutFailureNone, res.Failure)
	assert.Equal(t, issued.JTI, res.RevokedJTI)
	assert.Equal(t, 1, res.Removed)
	assert.Greater(t, f.sessions.blacklist[issued.JTI], time.Duration(0))

	again := RunLogout(ctx, issued.AccessToken, issued.SessionID, f.logout)
	assert.Equal(t, LogoutFailureNone, again.Failure)
	assert.Zero(t, again.Removed)
}

func TestLogoutSkipsUnverifiableToken(t *testing.T) {
	f := newFlowFixture(t)
	res := RunLogout(context.Background(), "garbage", "", f.logout)
	assert.Equal(t, LogoutFailureNone, res.Failure)
	assert.Empty(t, res.RevokedJTI)
	assert.Empty(t, f.sessions.blacklist)
}

func TestRevokeSessionChecksOwner(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Put(ctx, 1, "sid-1", "tok", time.Hour))

	res := RunRevokeSession(ctx, 2, "sid-1", f.logout)
	assert.Equal(t, LogoutFailureSessionNotFound, res.Failure)

	res = RunRevokeSession(ctx, 1, "sid-1", f.logout)
	assert.Equal(t, LogoutFailureNone, res.Failure)
	assert.Equal(t, 1, res.Removed)
}

type memOTP struct {
	codes map[string]string
	ttls  map[string]time.Duration
}

func (m *memOTP) Save(_ context.Context, p, s, code string, ttl time.Duration) error {
	m.codes[p+"|"+s] = code
	m.ttls[p+"|"+s] = ttl
	return nil
}

func (m *memOTP) TTL(_ context.Context, p, s string) (time.Duration, error) {
	ttl, ok := m.ttls[p+"|"+s]
	if !ok {
		return 0, errNotFound
	}
	return ttl, nil
}

func (m *memOTP) Get(_ context.Context, p, s string) (string, error) {
	c, ok := m.codes[p+"|"+s]
	if !ok {
		return "", errNotFound
	}
	return c, nil
}

func (m *memOTP) Consume(_ context.Context, p, s, supplied string) error {
	c, ok := m.codes[p+"|"+s]
	if !ok {
		return errNotFound
	}
	if c != strings.TrimSpace(supplied) {
		return errMismatch
	}
	delete(m.codes, p+"|"+s)
	delete(m.ttls, p+"|"+s)
	return nil
}

func (m *memOTP) Delete(_ context.Context, p, s string) error {
	delete(m.codes, p+"|"+s)
	delete(m.ttls, p+"|"+s)
	return nil
}

func newOTPDeps(intn func(int64) (int64, error)) (OTPDeps, *memOTP) {
	store := &memOTP{codes: map[string]string{}, ttls: map[string]time.Duration{}}
	return OTPDeps{
		Store:       store,
		Intn:        intn,
		TTL:         func(string) time.Duration { return 5 * time.Minute },
		RateLimited: errLimited,
		NotFound:    errNotFound,
		Mismatch:    errMismatch,
	}, store
}

func TestNewOTPCodeRange(t *testing.T) {
	low, err := NewOTPCode(func(int64) (int64, error) { return 0, nil })
	require.NoError(t, err)
	assert.Equal(t, "100000", low)

	high, err := NewOTPCode(func(n int64) (int64, error) { return n - 1, nil })
	require.NoError(t, err)
	assert.Equal(t, "999999", high)

	_, err = NewOTPCode(func(n int64) (int64, error) { return n, nil })
	assert.Error(t, err)
}

func TestIssueOTPRollsBackOnDeliveryFailure(t *testing.T) {
	deps, store := newOTPDeps(func(int64) (int64, error) { return 23456, nil })
	ctx := context.Background()

	limiter := &countingLimiter{max: 5}
	deps.Limiter = limiter

	deliveryErr := errors.New("smtp down")
	res := RunIssueOTP(ctx, "admin-login", "root", func(context.Context, string, time.Duration) error {
		return deliveryErr
	}, deps)
	assert.Equal(t, OTPFailureDelivery, res.Failure)
	assert.ErrorIs(t, res.Err, deliveryErr)
	assert.Empty(t, store.codes)
	assert.Zero(t, limiter.issued)
}

func TestIssueAndConsumeOTP(t *testing.T) {
	deps, _ := newOTPDeps(func(int64) (int64, error) { return 23456, nil })
	ctx := context.Background()

	var delivered string
	res := RunIssueOTP(ctx, "admin-login", "root", func(_ context.Context, code string, ttl time.Duration) error {
		delivered = code
		assert.Equal(t, 5*time.Minute, ttl)
		return nil
	}, deps)
	require.Equal(t, OTPFailureNone, res.Failure)
	assert.Equal(t, "123456", res.Code)
	assert.Equal(t, "123456", delivered)

	peek := RunPeekOTP(ctx, "admin-login", "root", deps)
	assert.Equal(t, "123456", peek.Code)
	assert.Equal(t, 5*time.Minute, peek.TTL)

	assert.Equal(t, OTPFailureInvalid, RunConsumeOTP(ctx, "admin-login", "root", "654321", deps).Failure)
	assert.Equal(t, OTPFailureNone, RunConsumeOTP(ctx, "admin-login", "root", "123456", deps).Failure)
	assert.Equal(t, OTPFailureExpired, RunConsumeOTP(ctx, "admin-login", "root", "123456", deps).Failure)
	assert.Equal(t, OTPFailureExpired, RunPeekOTP(ctx, "admin-login", "root", deps).Failure)
}

type countingLimiter struct {
	failures int
	max      int
	issued   int
}

func (l *countingLimiter) CheckOTPIssue(context.Context, string, string) error {
	l.issued++
	return nil
}
func (l *countingLimiter) RefundOTPIssue(context.Context, string, string) error {
	l.issued--
	return nil
}
func (l *countingLimiter) CheckOTPVerify(context.Context, string, string) error {
	if l.failures >= l.max {
		return errLimited
	}
	return nil
}
func (l *countingLimiter) RecordOTPFailure(context.Context, string, string) error {
	l.failures++
	return nil
}
func (l *countingLimiter) ResetOTPFailures(context.Context, string, string) error {
	l.failures = 0
	return nil
}

func TestConsumeOTPFailureBudget(t *testing.T) {
	deps, store := newOTPDeps(func(int64) (int64, error) { return 0, nil })
	limiter := &countingLimiter{max: 2}
	deps.Limiter = limiter
	ctx := context.Background()

	require.Equal(t, OTPFailureNone, RunIssueOTP(ctx, "password-reset", "u@example.com", nil, deps).Failure)

	assert.Equal(t, OTPFailureInvalid, RunConsumeOTP(ctx, "password-reset", "u@example.com", "111111", deps).Failure)
	assert.Equal(t, OTPFailureInvalid, RunConsumeOTP(ctx, "password-reset", "u@example.com", "111111", deps).Failure)
	assert.Equal(t, OTPFailureRateLimited, RunConsumeOTP(ctx, "password-reset", "u@example.com", "100000", deps).Failure)
	assert.Len(t, store.codes, 1)

	require.Equal(t, OTPFailureNone, RunIssueOTP(ctx, "password-reset", "u@example.com", nil, deps).Failure)
	assert.Equal(t, OTPFailureNone, RunConsumeOTP(ctx, "password-reset", "u@example.com", "100000", deps).Failure)
}
