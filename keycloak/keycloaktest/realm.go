// Package keycloaktest provides an in-process fake Keycloak realm for tests.
package keycloaktest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	RealmName = "test-realm"
	ClientID  = "test-client"
	KeyID     = "test-kid"
)

type user struct {
	password string
	roles    []string
}

type cannedResponse struct {
	status int
	body   string
}

// Realm serves the certs and token endpoints of a single realm signed by one RSA key.
type Realm struct {
	Server *httptest.Server
	Key    *rsa.PrivateKey

	t  testing.TB
	mu sync.Mutex

	users        map[string]user
	certsHits    int
	tokenHits    int
	certsStatus  int
	extraKeys    []map[string]string
	tokenCanned  *cannedResponse
	lastTokenReq map[string]string
}

// NewRealm starts a fake realm that is closed when the test ends.
func NewRealm(t testing.TB) *Realm {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	r := &Realm{
		Key:   key,
		t:     t,
		users: make(map[string]user),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+RealmName+"/protocol/openid-connect/certs", r.handleCerts)
	mux.HandleFunc("/realms/"+RealmName+"/protocol/openid-connect/token", r.handleToken)
	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Server.Close)

	return r
}

// URL is the server base URL, suitable as KEYCLOAK_SERVER_URL
func (r *Realm) URL() string {
	return r.Server.URL
}

func (r *Realm) CertsURL() string {
	return r.Server.URL + "/realms/" + RealmName + "/protocol/openid-connect/certs"
}

func (r *Realm) TokenURL() string {
	return r.Server.URL + "/realms/" + RealmName + "/protocol/openid-connect/token"
}

// AddUser registers credentials accepted by the token endpoint
func (r *Realm) AddUser(username, password string, roles ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[username] = user{password: password, roles: roles}
}

// SetTokenResponse makes the token endpoint answer every request with a fixed body
func (r *Realm) SetTokenResponse(status int, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenCanned = &cannedResponse{status: status, body: body}
}

// SetCertsStatus makes the certs endpoint fail with status. Zero restores normal behavior.
func (r *Realm) SetCertsStatus(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.certsStatus = status
}

// PublishKey adds a raw JWK entry to the served key set
func (r *Realm) PublishKey(jwk map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extraKeys = append(r.extraKeys, jwk)
}

// CertsRequests returns how many times the key set was fetched
func (r *Realm) CertsRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.certsHits
}

// TokenRequests returns how many times the token endpoint was called
func (r *Realm) TokenRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokenHits
}

// LastTokenForm returns the form fields of the most recent token request
func (r *Realm) LastTokenForm() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTokenReq
}

// IssueToken signs claims with the realm key under KeyID. An exp one hour out is
// added when claims carry none.
func (r *Realm) IssueToken(claims jwt.MapClaims) string {
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	return r.Sign(jwt.SigningMethodRS256, r.Key, KeyID, claims)
}

// IssueUserToken issues a token shaped like a Keycloak access token
func (r *Realm) IssueUserToken(username string, roles ...string) string {
	roleList := make([]interface{}, len(roles))
	for i, role := range roles {
		roleList[i] = role
	}
	return r.IssueToken(jwt.MapClaims{
		"sub":                "sub-" + username,
		"preferred_username": username,
		"email":              username + "@example.com",
		"azp":                ClientID,
		"aud":                "account",
		"iat":                time.Now().Unix(),
		"realm_access":       map[string]interface{}{"roles": roleList},
	})
}

// Sign produces a token with an arbitrary method, key and kid. An empty kid omits the header.
func (r *Realm) Sign(method jwt.SigningMethod, key interface{}, kid string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(r.t, err)
	return signed
}

// JWK returns the realm public key in JWK form
func (r *Realm) JWK() map[string]string {
	pub := r.Key.PublicKey
	return map[string]string{
		"kid": KeyID,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func (r *Realm) handleCerts(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	r.certsHits++
	status := r.certsStatus
	keys := append([]map[string]string{r.JWK()}, r.extraKeys...)
	r.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("unavailable"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"keys": keys})
}

func (r *Realm) handleToken(w http.ResponseWriter, req *http.Request) {
	_ = req.ParseForm()

	r.mu.Lock()
	r.tokenHits++
	r.lastTokenReq = map[string]string{}
	for k := range req.PostForm {
		r.lastTokenReq[k] = req.PostForm.Get(k)
	}
	canned := r.tokenCanned
	u, known := r.users[req.PostForm.Get("username")]
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if canned != nil {
		w.WriteHeader(canned.status)
		_, _ = w.Write([]byte(canned.body))
		return
	}

	if req.PostForm.Get("grant_type") != "password" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
		return
	}

	if !known || u.password != req.PostForm.Get("password") {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid user credentials",
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": r.IssueUserToken(req.PostForm.Get("username"), u.roles...),
		"expires_in":   300,
		"token_type":   "Bearer",
	})
}
