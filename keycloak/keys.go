package keycloak

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// keyCacheSize bounds the number of cached keys. Realms rarely publish more than a handful.
const keyCacheSize = 64

// JWKS represents the JSON Web Key Set served by the realm's certs endpoint
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Find returns the key with the given kid, or nil.
func (s *JWKS) Find(kid string) *JWK {
	for i := range s.Keys {
		if s.Keys[i].Kid == kid {
			return &s.Keys[i]
		}
	}
	return nil
}

// KeyResolverConfig holds configuration for KeyResolver
type KeyResolverConfig struct {
	CertsURL    string
	CacheTTL    time.Duration // zero disables caching
	HTTPTimeout time.Duration
}

// KeyResolver looks up realm signing keys by kid. Without a cache TTL every
// lookup performs a fresh fetch of the key set.
type KeyResolver struct {
	certsURL   string
	httpClient *http.Client
	cache      *expirable.LRU[string, *rsa.PublicKey]
}

// NewKeyResolver creates a resolver for the given certs endpoint
func NewKeyResolver(cfg KeyResolverConfig) *KeyResolver {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	r := &KeyResolver{
		certsURL:   cfg.CertsURL,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
	if cfg.CacheTTL > 0 {
		r.cache = expirable.NewLRU[string, *rsa.PublicKey](keyCacheSize, nil, cfg.CacheTTL)
	}
	return r
}

// CachingEnabled reports whether resolved keys are reused across calls
func (r *KeyResolver) CachingEnabled() bool {
	return r.cache != nil
}

// Resolve returns the RSA public key published under kid.
func (r *KeyResolver) Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if r.cache != nil {
		if key, ok := r.cache.Get(kid); ok {
			return key, nil
		}
	}

	jwks, err := r.FetchKeySet(ctx)
	if err != nil {
		return nil, err
	}

	jwk := jwks.Find(kid)
	if jwk == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}

	key, err := jwkToRSAPublicKey(jwk)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Add(kid, key)
	}
	return key, nil
}

// FetchKeySet performs a single GET against the certs endpoint
func (r *KeyResolver) FetchKeySet(ctx context.Context) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.certsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrKeySetUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrKeySetUnavailable, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JWKS: %v", ErrKeySetUnavailable, err)
	}

	return &jwks, nil
}

func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("%w: kid %s has key type %q", ErrUnsupportedKey, jwk.Kid, jwk.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil || len(nBytes) == 0 {
		return nil, fmt.Errorf("%w: kid %s has an undecodable modulus", ErrUnsupportedKey, jwk.Kid)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, fmt.Errorf("%w: kid %s has an undecodable exponent", ErrUnsupportedKey, jwk.Kid)
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
