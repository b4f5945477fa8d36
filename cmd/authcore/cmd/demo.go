package cmd

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrEthical07/authcore"
)

type demoUser struct {
	principal authcore.Principal
	password  string
}

// directory is the in-memory user store behind the demo server. Passwords are
// held in the clear; a real deployment keeps credentials in its own store.
type directory struct {
	mu      sync.RWMutex
	byID    map[int64]*demoUser
	byEmail map[string]*demoUser
}

func newDirectory() *directory {
	d := &directory{
		byID:    make(map[int64]*demoUser),
		byEmail: make(map[string]*demoUser),
	}
	d.add(authcore.Principal{UserID: 1, Subject: "admin@example.com", Name: "Admin", Role: "admin", Provider: authcore.ProviderLocal}, "admin-password")
	d.add(authcore.Principal{UserID: 2, Subject: "user@example.com", Name: "User", Role: "user", Provider: authcore.ProviderLocal}, "user-password")
	d.add(authcore.Principal{UserID: 3, Subject: "sso@example.com", Name: "SSO User", Role: "user", Provider: authcore.ProviderOAuth2}, "")
	return d
}

func (d *directory) add(p authcore.Principal, password string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := &demoUser{principal: p, password: password}
	d.byID[p.UserID] = u
	d.byEmail[strings.ToLower(p.Subject)] = u
}

func (d *directory) GetUserByID(_ context.Context, userID int64) (authcore.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[userID]
	if !ok {
		return authcore.Principal{}, authcore.ErrUserNotFound
	}
	return u.principal, nil
}

func (d *directory) byEmailAddr(email string) (authcore.Principal, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return authcore.Principal{}, false
	}
	return u.principal, true
}

// verify checks a local password. External accounts never match.
func (d *directory) verify(email, password string) (authcore.Principal, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok || u.principal.Provider != authcore.ProviderLocal || u.password == "" {
		return authcore.Principal{}, false
	}
	if subtle.ConstantTimeCompare([]byte(u.password), []byte(password)) != 1 {
		return authcore.Principal{}, false
	}
	return u.principal, true
}

func (d *directory) setPassword(userID int64, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	u.password = password
	return nil
}

// logMailer "delivers" codes by logging them.
type logMailer struct {
	log *slog.Logger
}

func (m logMailer) SendOTP(ctx context.Context, msg authcore.OTPMessage) error {
	m.log.InfoContext(ctx, "otp issued",
		slog.String("purpose", string(msg.Purpose)),
		slog.String("to", msg.To),
		slog.String("code", msg.Code),
		slog.Duration("ttl", msg.TTL),
	)
	return nil
}

func (m logMailer) SendNotice(ctx context.Context, n authcore.Notice) error {
	m.log.InfoContext(ctx, "notice sent", slog.String("kind", string(n.Kind)), slog.String("to", n.To))
	return nil
}
