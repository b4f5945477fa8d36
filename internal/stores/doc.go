// Package stores persists one-time code challenges in Redis.
//
// A challenge is a single string value keyed by purpose and subject with a
// TTL. Consume compares in constant time and deletes the key inside a
// WATCH/MULTI transaction, retrying on contention, so a code is accepted at
// most once even under concurrent submissions.
//
// The package does not generate codes, throttle attempts or normalize
// subjects. Those belong to internal/flows and the engine.
package stores
