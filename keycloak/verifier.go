package keycloak

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// allowedAlgorithm is the only signing algorithm accepted for realm tokens
const allowedAlgorithm = "RS256"

// KeySource resolves a signing key by kid
type KeySource interface {
	Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// VerifierConfig holds configuration for Verifier
type VerifierConfig struct {
	// VerifyAudience enables the aud check against Audience. Off by default.
	VerifyAudience bool
	Audience       string
}

// Verifier validates realm access tokens and returns their claims
type Verifier struct {
	keys   KeySource
	parser *jwt.Parser
}

// NewVerifier creates a new token verifier backed by keys
func NewVerifier(keys KeySource, cfg VerifierConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{allowedAlgorithm}),
	}
	if cfg.VerifyAudience {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{
		keys:   keys,
		parser: jwt.NewParser(opts...),
	}
}

// Verify checks the token's signature against the realm key named by its kid
// header and returns the decoded claims. The returned error always wraps one of
// the package's verification sentinels.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	unverified, _, err := v.parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, fmt.Errorf("%w: %v", ErrDisallowedAlgorithm, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	kid, ok := unverified.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, ErrMissingKeyID
	}

	if alg := unverified.Method.Alg(); alg != allowedAlgorithm {
		return nil, fmt.Errorf("%w: %s", ErrDisallowedAlgorithm, alg)
	}

	key, err := v.keys.Resolve(ctx, kid)
	if err != nil {
		return nil, err
	}

	token, err := v.parser.ParseWithClaims(tokenString, jwt.MapClaims{}, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if len(claims) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidClaims)
	}

	return Claims(claims), nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}
