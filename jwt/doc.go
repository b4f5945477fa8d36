// Package jwt issues and verifies the HS256 access and refresh tokens used by
// authcore. Verification is stateless; revocation checks live in the engine.
package jwt
