package flows

import (
	"context"

	"github.com/MrEthical07/authcore/jwt"
)

// AuthenticateFailureKind classifies request authentication failures.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureInvalidToken
	AuthenticateFailureRevoked
	AuthenticateFailureStore
)

type BlacklistReader interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// AuthenticateDeps captures request authentication dependencies.
type AuthenticateDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	Blacklist   BlacklistReader
}

// AuthenticateResult returns verified claims or a classified failure.
type AuthenticateResult struct {
	Failure AuthenticateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// RunAuthenticate verifies the access token and then consults the blacklist.
// A blacklist lookup that cannot complete is a failure, never a pass.
func RunAuthenticate(ctx context.Context, accessToken string, deps AuthenticateDeps) AuthenticateResult {
	claims, err := deps.ParseAccess(accessToken)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureInvalidToken, Err: err}
	}

	revoked, err := deps.Blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureStore, Err: err, Claims: claims}
	}
	if revoked {
		return AuthenticateResult{Failure: AuthenticateFailureRevoked, Claims: claims}
	}

	return AuthenticateResult{Failure: AuthenticateFailureNone, Claims: claims}
}
