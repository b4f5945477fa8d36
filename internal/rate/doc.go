// Package rate provides Redis-backed fixed-window throttles for OTP issuance,
// wrong OTP codes and refresh calls.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes
// (after the configured namespace):
//   - rl:oi:: OTP issuance per purpose and subject
//   - rl:of:: wrong OTP codes per purpose and subject
//   - rl:rf:: refresh per session
//
// # What this package must NOT do
//
//   - Decide what happens after a limit trips (the engine maps errors).
//   - Be imported outside the authcore module.
package rate
