package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]Principal
}

func newFakeUsers(ps ...Principal) *fakeUsers {
	u := &fakeUsers{users: make(map[int64]Principal)}
	for _, p := range ps {
		u.users[p.UserID] = p
	}
	return u
}

func (u *fakeUsers) GetUserByID(_ context.Context, userID int64) (Principal, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p, ok := u.users[userID]
	if !ok {
		return Principal{}, ErrUserNotFound
	}
	return p, nil
}

func (u *fakeUsers) put(p Principal) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users[p.UserID] = p
}

func (u *fakeUsers) remove(userID int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.users, userID)
}

type fakeMailer struct {
	mu        sync.Mutex
	otps      []OTPMessage
	notices   []Notice
	otpErr    error
	noticeErr error
}

func (m *fakeMailer) SendOTP(_ context.Context, msg OTPMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.otpErr != nil {
		return m.otpErr
	}
	m.otps = append(m.otps, msg)
	return nil
}

func (m *fakeMailer) SendNotice(_ context.Context, n Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.noticeErr != nil {
		return m.noticeErr
	}
	m.notices = append(m.notices, n)
	return nil
}

func (m *fakeMailer) failOTP(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otpErr = err
}

func (m *fakeMailer) lastOTP(t *testing.T) OTPMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.otps, "no otp was delivered")
	return m.otps[len(m.otps)-1]
}

func (m *fakeMailer) noticeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notices)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	alice = Principal{UserID: 42, Subject: "alice@example.com", Name: "Alice", Role: "admin", Provider: ProviderLocal}
	bob   = Principal{UserID: 7, Subject: "bob@example.com", Name: "Bob", Role: "user", Provider: ProviderLocal}
	carol = Principal{UserID: 9, Subject: "carol@example.com", Name: "Carol", Role: "user", Provider: ProviderOAuth2}
)

var errInjected = errors.New("injected failure")

type testEngine struct {
	*Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	users  *fakeUsers
	mailer *fakeMailer
	clock  *fakeClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte(strings.Repeat("s", 32))
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testEngine {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	te := &testEngine{
		mr:     mr,
		rdb:    rdb,
		users:  newFakeUsers(alice, bob, carol),
		mailer: &fakeMailer{},
		clock:  &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(te.users).
		WithMailer(te.mailer).
		WithClock(te.clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	te.Engine = engine
	return te
}

// breakRedis makes every following command fail until the test ends or
// healRedis is called.
func (te *testEngine) breakRedis() {
	te.mr.SetError("ERR injected outage")
}

func (te *testEngine) healRedis() {
	te.mr.SetError("")
}

func (te *testEngine) accessJTI(t *testing.T, token string) string {
	t.Helper()
	claims, err := te.jwtManager.ParseAccess(token)
	require.NoError(t, err)
	return claims.ID
}
