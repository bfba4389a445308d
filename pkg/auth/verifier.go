// Package auth verifies the short-lived identity assertions that clients
// present when they open a presence connection.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication errors. Both are fatal to the connection.
var (
	// ErrInvalidAssertion is returned when the signature, expiry, or shape of
	// an assertion is rejected.
	ErrInvalidAssertion = errors.New("invalid identity assertion")

	// ErrWrongAudience is returned when a valid assertion was issued for a
	// different channel.
	ErrWrongAudience = errors.New("wrong assertion audience")
)

// Claims is the verified content of an identity assertion.
type Claims struct {
	Subject   string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasAudience reports whether the assertion was issued for channel.
func (c *Claims) HasAudience(channel string) bool {
	return slices.Contains(c.Audience, channel)
}

// CheckAudience returns an error wrapping ErrWrongAudience unless the
// assertion was issued for channel.
func (c *Claims) CheckAudience(channel string) error {
	if c.HasAudience(channel) {
		return nil
	}
	return fmt.Errorf("%w: got %q, expected %q", ErrWrongAudience, c.Audience, channel)
}

// Verifier maps an opaque token to verified claims.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// JWTConfig configures the JWT verifier. Exactly one of PublicKey (RS256) or
// SigningKey (HS256) must be set.
type JWTConfig struct {
	// PublicKey verifies RS256 signatures.
	PublicKey *rsa.PublicKey

	// SigningKey verifies HS256 signatures.
	SigningKey []byte

	// Leeway tolerates clock skew on exp/iat.
	Leeway time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// JWTVerifier verifies JSON Web Tokens.
type JWTVerifier struct {
	cfg    JWTConfig
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier for the configured key.
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if cfg.PublicKey == nil && len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("a public key or signing key is required")
	}
	if cfg.PublicKey != nil && len(cfg.SigningKey) > 0 {
		return nil, fmt.Errorf("public key and signing key are mutually exclusive")
	}

	method := jwt.SigningMethodRS256.Alg()
	if cfg.PublicKey == nil {
		method = jwt.SigningMethodHS256.Alg()
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}

	return &JWTVerifier{
		cfg:    cfg,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify checks signature, expiry, and issue time, and returns the claims.
// Every failure wraps ErrInvalidAssertion.
func (v *JWTVerifier) Verify(token string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	parsed, err := v.parser.ParseWithClaims(token, &rc, v.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: token not valid", ErrInvalidAssertion)
	}
	if rc.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidAssertion)
	}

	claims := &Claims{
		Subject:   rc.Subject,
		Audience:  []string(rc.Audience),
		ExpiresAt: rc.ExpiresAt.Time,
	}
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Time
	}
	return claims, nil
}

func (v *JWTVerifier) key(_ *jwt.Token) (any, error) {
	if v.cfg.PublicKey != nil {
		return v.cfg.PublicKey, nil
	}
	return v.cfg.SigningKey, nil
}

// LoadRSAPublicKey reads a PEM encoded RSA public key.
// The path comes from the configuration file, controlled by the administrator.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	// #nosec G304 -- path is from config, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return key, nil
}

// Verify interface compliance.
var _ Verifier = (*JWTVerifier)(nil)
