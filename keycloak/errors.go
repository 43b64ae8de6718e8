package keycloak

import (
	"errors"
	"fmt"
)

// Verification failures. Every error returned by Verifier.Verify wraps exactly one of these.
var (
	// ErrMalformedToken is returned when the token cannot be decoded as a JWT
	ErrMalformedToken = errors.New("malformed token")

	// ErrMissingKeyID is returned when the token header carries no kid
	ErrMissingKeyID = errors.New("token header missing kid")

	// ErrDisallowedAlgorithm is returned when the token is not signed with RS256
	ErrDisallowedAlgorithm = errors.New("disallowed signing algorithm")

	// ErrKeySetUnavailable is returned when the JWKS endpoint cannot be read
	ErrKeySetUnavailable = errors.New("signing key set unavailable")

	// ErrKeyNotFound is returned when no key in the set matches the token's kid
	ErrKeyNotFound = errors.New("no signing key matches kid")

	// ErrUnsupportedKey is returned when the matching key is not a usable RSA key
	ErrUnsupportedKey = errors.New("unsupported signing key")

	// ErrInvalidSignature is returned when the signature does not verify
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidClaims is returned when a registered claim (nbf, aud) fails validation
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Credential exchange failures
var (
	// ErrCredentialsRejected is returned when the token endpoint answers without an access token
	ErrCredentialsRejected = errors.New("credentials rejected")

	// ErrTokenEndpointUnavailable is returned when the token endpoint cannot be reached or answers garbage
	ErrTokenEndpointUnavailable = errors.New("token endpoint unavailable")
)

// FailureReason is a short, stable label for a verification failure.
type FailureReason string

const (
	ReasonMalformed         FailureReason = "malformed"
	ReasonMissingKeyID      FailureReason = "missing_kid"
	ReasonDisallowedAlg     FailureReason = "disallowed_alg"
	ReasonKeySetUnavailable FailureReason = "keyset_unavailable"
	ReasonKeyNotFound       FailureReason = "key_not_found"
	ReasonUnsupportedKey    FailureReason = "unsupported_key"
	ReasonInvalidSignature  FailureReason = "invalid_signature"
	ReasonExpired           FailureReason = "expired"
	ReasonInvalidClaims     FailureReason = "invalid_claims"
	ReasonUnknown           FailureReason = "unknown"
)

var reasons = []struct {
	err    error
	reason FailureReason
}{
	{ErrMalformedToken, ReasonMalformed},
	{ErrMissingKeyID, ReasonMissingKeyID},
	{ErrDisallowedAlgorithm, ReasonDisallowedAlg},
	{ErrKeySetUnavailable, ReasonKeySetUnavailable},
	{ErrKeyNotFound, ReasonKeyNotFound},
	{ErrUnsupportedKey, ReasonUnsupportedKey},
	{ErrInvalidSignature, ReasonInvalidSignature},
	{ErrTokenExpired, ReasonExpired},
	{ErrInvalidClaims, ReasonInvalidClaims},
}

// Reason classifies a verification error. Errors outside this package map to ReasonUnknown.
func Reason(err error) FailureReason {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonUnknown
}

// ExchangeError describes a failed credential exchange. Description is safe to show to the user.
type ExchangeError struct {
	Description string
	StatusCode  int
	Err         error
}

func (e *ExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v (status %d): %s", e.Err, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Description)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
