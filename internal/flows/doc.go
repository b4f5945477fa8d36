// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunIssueSession, RunRefresh, RunLogout, RunIssueOTP,
// etc.) accepts a typed dependency struct and returns a result carrying a
// Failure kind. The Engine maps that kind to a public sentinel, records
// metrics and emits audit events, which keeps the Engine type thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, the OTP store, the
// token manager and the rate limiter. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
