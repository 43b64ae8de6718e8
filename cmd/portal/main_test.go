package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/realm-portal/app"
	"github.com/upb/realm-portal/config"
	"github.com/upb/realm-portal/keycloak/keycloaktest"
	"github.com/upb/realm-portal/routes"
)

func testConfig(serverURL string) *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Keycloak: config.KeycloakConfig{
			ServerURL:   serverURL,
			Realm:       keycloaktest.RealmName,
			ClientID:    keycloaktest.ClientID,
			AdminRole:   "admin",
			HTTPTimeout: 2 * time.Second,
		},
		Session: config.SessionConfig{CookieName: "access_token"},
		Observability: config.ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func TestInitLogger(t *testing.T) {
	t.Run("json logger", func(t *testing.T) {
		logger, err := initLogger(testConfig("http://localhost:8080"))
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("text logger", func(t *testing.T) {
		cfg := testConfig("http://localhost:8080")
		cfg.Observability.LogLevel = "debug"
		cfg.Observability.LogFormat = "text"

		logger, err := initLogger(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := testConfig("http://localhost:8080")
		cfg.Observability.LogLevel = "loud"

		logger, err := initLogger(cfg)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "failed to initialize logger")
	})
}

func TestNewServer(t *testing.T) {
	cfg := testConfig("http://localhost:8080")
	srv := newServer(cfg, http.NotFoundHandler())

	assert.Equal(t, "127.0.0.1:8000", srv.Addr)
	assert.Equal(t, 5*time.Second, srv.ReadTimeout)
	assert.Equal(t, 10*time.Second, srv.WriteTimeout)
}

func TestApplicationStartup(t *testing.T) {
	realm := keycloaktest.NewRealm(t)
	cfg := testConfig(realm.URL())

	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(context.Background())

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "healthy", data["status"])
}
