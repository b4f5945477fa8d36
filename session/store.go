package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every failed Redis round trip.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when a session record or index entry does not exist.
var ErrSessionNotFound = errors.New("session not found")

const blacklistValue = "revoked"

// deleteBySessionScript resolves the owning user from the index and removes
// all three session keys in one step. It returns nil when the index is gone.
const deleteBySessionScript = `
local uid = redis.call("GET", KEYS[1])
if not uid then
  return false
end
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[1] .. uid .. ":" .. ARGV[3])
redis.call("SREM", ARGV[2] .. uid, ARGV[3])
return uid
`

var deleteBySessionLua = redis.NewScript(deleteBySessionScript)

// Store is a Redis-backed refresh-session store and access-token blacklist.
//
// Put, Delete and DeleteAllForUser run MULTI/EXEC across keys of one user,
// and DeleteBySessionID derives key names inside a Lua script. Both assume
// every key lives on one node, so the client must not be a Redis Cluster.
type Store struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// Option customizes a [Store].
type Option func(*Store)

// WithOperationTimeout bounds every store call. The caller's deadline still
// applies when it is earlier.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace and defaults to "ac".
func NewStore(redisClient redis.UniversalClient, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = "ac"
	}
	s := &Store{
		redis:  redisClient,
		prefix: prefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) tokenKeyPrefix() string {
	return s.prefix + ":rt:"
}

func (s *Store) tokenKey(userID int64, sessionID string) string {
	return s.tokenKeyPrefix() + strconv.FormatInt(userID, 10) + ":" + sessionID
}

func (s *Store) indexKey(sessionID string) string {
	return s.prefix + ":sid:" + sessionID
}

func (s *Store) userKeyPrefix() string {
	return s.prefix + ":us:"
}

func (s *Store) userKey(userID int64) string {
	return s.userKeyPrefix() + strconv.FormatInt(userID, 10)
}

func (s *Store) blacklistKey(jti string) string {
	return s.prefix + ":bl:" + jti
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// Put writes the session record, the session->user index and the user's
// session-set membership with the same ttl in one MULTI/EXEC.
//
//	Performance: 1 round trip (SET + SET + SADD + EXPIRE).
func (s *Store) Put(ctx context.Context, userID int64, sessionID, refreshToken string, ttl time.Duration) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if sessionID == "" || ttl <= 0 {
		return errors.New("session id and positive ttl are required")
	}

	userKey := s.userKey(userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(userID, sessionID), refreshToken, ttl)
		pipe.Set(ctx, s.indexKey(sessionID), strconv.FormatInt(userID, 10), ttl)
		pipe.SAdd(ctx, userKey, sessionID)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// ResolveUser returns the user that owns sessionID.
func (s *Store) ResolveUser(ctx context.Context, sessionID string) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	raw, err := s.redis.Get(ctx, s.indexKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrSessionNotFound
		}
		return 0, unavailable(err)
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("session index for %s is corrupt: %w", sessionID, err)
	}
	return userID, nil
}

// GetRefreshToken returns the stored refresh token for (userID, sessionID).
func (s *Store) GetRefreshToken(ctx context.Context, userID int64, sessionID string) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	token, err := s.redis.Get(ctx, s.tokenKey(userID, sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", unavailable(err)
	}
	return token, nil
}

// Get resolves sessionID and returns the full record including its refresh
// token and remaining lifetime.
//
//	Performance: 2 round trips (GET index, then GET + PTTL pipelined).
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	userID, err := s.ResolveUser(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	key := s.tokenKey(userID, sessionID)
	pipe := s.redis.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	token, err := getCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, unavailable(err)
	}

	return &Session{
		SessionID:    sessionID,
		UserID:       userID,
		RefreshToken: token,
		ExpiresIn:    positiveTTL(ttlCmd.Val()),
	}, nil
}

// Delete removes the session record, its index entry and its set membership.
// Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, userID int64, sessionID string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.tokenKey(userID, sessionID), s.indexKey(sessionID))
		pipe.SRem(ctx, s.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteBySessionID atomically resolves and deletes a session when only its
// id is known. found reports whether the index entry existed.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) DeleteBySessionID(ctx context.Context, sessionID string) (userID int64, found bool, err error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	raw, err := deleteBySessionLua.Run(
		ctx,
		s.redis,
		[]string{s.indexKey(sessionID)},
		s.tokenKeyPrefix(),
		s.userKeyPrefix(),
		sessionID,
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, unavailable(err)
	}

	userID, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("session index for %s is corrupt: %w", sessionID, err)
	}
	return userID, true, nil
}

// DeleteAllForUser removes every session of userID and the session set itself.
// It returns the number of session records that were still present.
//
// ATOMICITY NOTE: the set is read before the delete transaction. A session
// added between the two phases survives until its TTL or the next call. Any
// partial failure leaves sessions either deleted or still tracked, never
// detached from the set.
func (s *Store) DeleteAllForUser(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, unavailable(err)
	}

	tokenKeys := make([]string, 0, len(sessionIDs))
	indexKeys := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		tokenKeys = append(tokenKeys, s.tokenKey(userID, sessionID))
		indexKeys = append(indexKeys, s.indexKey(sessionID))
	}

	var removed *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(tokenKeys) > 0 {
			removed = pipe.Del(ctx, tokenKeys...)
			pipe.Del(ctx, indexKeys...)
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	if removed == nil {
		return 0, nil
	}
	return int(removed.Val()), nil
}

// ActiveSessions lists the user's live sessions without their refresh tokens.
// Set members whose record has already expired are pruned from the set.
func (s *Store) ActiveSessions(ctx context.Context, userID int64) ([]Session, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ids, err := s.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Session{}, nil
	}

	pipe := s.redis.Pipeline()
	ttlCmds := make([]*redis.DurationCmd, len(ids))
	for i, sessionID := range ids {
		ttlCmds[i] = pipe.PTTL(ctx, s.tokenKey(userID, sessionID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	sessions := make([]Session, 0, len(ids))
	stale := make([]interface{}, 0)
	for i, cmd := range ttlCmds {
		ttl := cmd.Val()
		// PTTL reports -2 for missing keys.
		if ttl == -2 {
			stale = append(stale, ids[i])
			continue
		}
		sessions = append(sessions, Session{
			SessionID: ids[i],
			UserID:    userID,
			ExpiresIn: positiveTTL(ttl),
		})
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.userKey(userID), stale...).Err(); err != nil {
			return nil, unavailable(err)
		}
	}
	return sessions, nil
}

// ActiveSessionIDs returns tracked session IDs for a user. The set may still
// hold ids whose record has expired; [Store.ActiveSessions] filters them.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID int64) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, unavailable(err)
	}
	return ids, nil
}

// Blacklist records jti as revoked for ttl. A non-positive ttl means the token
// has already expired and nothing is written.
func (s *Store) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if ttl <= 0 || jti == "" {
		return nil
	}
	if err := s.redis.Set(ctx, s.blacklistKey(jti), blacklistValue, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// IsBlacklisted reports whether jti has been revoked. A Redis failure is
// returned as an error and never as false.
func (s *Store) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	n, err := s.redis.Exists(ctx, s.blacklistKey(jti)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}

func positiveTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
