package session

import "time"

// Session is a refresh session as read back from Redis.
//
// RefreshToken is populated only by [Store.Get]; listing calls leave it empty so
// the raw token never travels further than the engine.
type Session struct {
	SessionID    string
	UserID       int64
	RefreshToken string
	ExpiresIn    time.Duration
}
