// Package session provides the Redis-backed refresh-session store and the
// access-token blacklist.
//
// # Key layout
//
// Every session is held in three co-located keys that share one TTL and are
// written in a single MULTI/EXEC:
//
//	{prefix}:rt:{userID}:{sessionID}  refresh token
//	{prefix}:sid:{sessionID}          owning user id
//	{prefix}:us:{userID}              set of the user's session ids
//
// Revoked access tokens are tracked as {prefix}:bl:{jti} with the token's
// remaining lifetime as TTL.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It
// does NOT parse or sign tokens and does not decide whether a session should
// be revoked; those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authcore or jwt (no upward imports).
//   - Report a Redis failure as a missing session or a missing blacklist entry.
package session
