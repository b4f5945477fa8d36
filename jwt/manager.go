package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TypeAccess marks a token as a short-lived access credential.
	TypeAccess = "access"
	// TypeRefresh marks a token as a server-held refresh credential.
	TypeRefresh = "refresh"

	// MinSecretLength is the minimum accepted HS256 secret size in bytes.
	MinSecretLength = 32
)

// ErrInvalidToken is returned for every verification failure. Malformed,
// mis-signed, expired and wrong-kind tokens are deliberately not told apart.
var ErrInvalidToken = errors.New("invalid token")

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secret     []byte
	Issuer     string
	Audience   string
	// Now overrides the wall clock for issuance and expiry checks.
	Now func() time.Time
}

// Manager signs and verifies HS256 access and refresh tokens with a single
// shared secret. It holds no mutable state and is safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// AccessClaims is the claim set carried by every access token.
type AccessClaims struct {
	UserID   int64  `json:"userId"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set carried by a refresh token. SessionID is
// mirrored into the registered jti claim.
type RefreshClaims struct {
	UserID    int64  `json:"userId"`
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a ready codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must be >= access TTL")
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{config: cfg, method: jwt.SigningMethodHS256}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// CreateAccess signs an access token for the given principal and returns the
// compact token together with its expiry.
func (j *Manager) CreateAccess(subject string, userID int64, name, role, jti string) (string, time.Time, error) {
	now := j.config.Now()
	claims := AccessClaims{
		UserID:           userID,
		FullName:         name,
		Role:             role,
		Type:             TypeAccess,
		RegisteredClaims: j.registered(subject, jti, now, j.config.AccessTTL),
	}

	signed, err := j.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// CreateRefresh signs a refresh token bound to sessionID.
func (j *Manager) CreateRefresh(subject string, userID int64, sessionID string) (string, time.Time, error) {
	now := j.config.Now()
	claims := RefreshClaims{
		UserID:           userID,
		SessionID:        sessionID,
		Type:             TypeRefresh,
		RegisteredClaims: j.registered(subject, sessionID, now, j.config.RefreshTTL),
	}

	signed, err := j.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// ParseAccess verifies signature, algorithm, expiry and token kind.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != TypeAccess || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token the same way ParseAccess does.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != TypeRefresh || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RemainingTTL returns exp - now for a verifiable token of either kind,
// floored at zero. Unverifiable tokens report zero.
func (j *Manager) RemainingTTL(tokenStr string) time.Duration {
	claims := &jwt.RegisteredClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return 0
	}
	return j.Until(claims.ExpiresAt.Time)
}

// Until returns the time left before exp, floored at zero.
func (j *Manager) Until(exp time.Time) time.Duration {
	d := exp.Sub(j.config.Now())
	if d < 0 {
		return 0
	}
	return d
}

func (j *Manager) registered(subject, id string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    j.config.Issuer,
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return rc
}

func (j *Manager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(j.method, claims)
	return token.SignedString(j.config.Secret)
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims) error {
	if tokenStr == "" {
		return ErrInvalidToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.config.Secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}
