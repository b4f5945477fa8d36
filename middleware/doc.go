// Package middleware adapts authcore.Engine to net/http.
//
// # Guards
//
//   - [Guard] rejects requests without a valid, unrevoked access token.
//   - [Optional] attaches the identity when a valid token is present and
//     lets anonymous requests through.
//   - [RequireRole] must run behind Guard and checks the token's role claim.
//
// [Throttle] is a per-IP token bucket for unauthenticated credential
// endpoints.
//
// The token is read from the Authorization header ("Bearer <token>"). When the
// header is absent, the engine's access cookie is promoted to a bearer token.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine.Authenticate).
//   - Access Redis (Engine handles I/O).
package middleware
