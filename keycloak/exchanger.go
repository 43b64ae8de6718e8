package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultRejectionMessage is shown when the realm rejects credentials without a description
	DefaultRejectionMessage = "Invalid credentials"

	// UnavailableMessage is shown when the token endpoint cannot be used at all
	UnavailableMessage = "Unable to reach the identity provider"
)

// TokenResponse represents the realm token endpoint response, success or error
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangerConfig holds configuration for PasswordExchanger
type ExchangerConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPTimeout  time.Duration
}

// PasswordExchanger trades a username and password for an access token using
// the resource-owner-password grant.
type PasswordExchanger struct {
	cfg        ExchangerConfig
	httpClient *http.Client
}

// NewPasswordExchanger creates a new token exchanger
func NewPasswordExchanger(cfg ExchangerConfig) *PasswordExchanger {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &PasswordExchanger{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// ExchangePassword posts the credentials to the token endpoint. On failure the
// returned error is an *ExchangeError wrapping ErrCredentialsRejected or
// ErrTokenEndpointUnavailable.
func (e *PasswordExchanger) ExchangePassword(ctx context.Context, username, password string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {"password"},
		"client_id":  {e.cfg.ClientID},
		"username":   {username},
		"password":   {password},
	}
	if e.cfg.ClientSecret != "" {
		data.Set("client_secret", e.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, unavailable(0, fmt.Errorf("create token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(0, fmt.Errorf("token request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(resp.StatusCode, fmt.Errorf("read token response: %w", err))
	}

	// Keycloak answers rejected credentials with a 401 and a JSON error body, so
	// the body is decoded regardless of status.
	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, unavailable(resp.StatusCode, fmt.Errorf("parse token response: %w", err))
	}

	if tokenResp.AccessToken == "" {
		description := tokenResp.ErrorDescription
		if description == "" {
			description = DefaultRejectionMessage
		}
		return nil, &ExchangeError{
			Description: description,
			StatusCode:  resp.StatusCode,
			Err:         ErrCredentialsRejected,
		}
	}

	return &tokenResp, nil
}

func unavailable(status int, cause error) error {
	return &ExchangeError{
		Description: UnavailableMessage,
		StatusCode:  status,
		Err:         fmt.Errorf("%w: %v", ErrTokenEndpointUnavailable, cause),
	}
}
