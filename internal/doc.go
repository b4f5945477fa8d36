// Package internal contains helpers that are private to authcore, chiefly the
// crypto/rand backed [CryptoSource] used for session ids, jtis and OTP codes.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: flow functions behind every Engine operation
//   - rate: Redis-backed fixed-window throttles
//   - stores: Redis persistence for OTP challenges
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
