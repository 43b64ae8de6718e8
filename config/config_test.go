package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8000, cfg.Server.Port)
				assert.Equal(t, "http://localhost:8080", cfg.Keycloak.ServerURL)
				assert.Equal(t, "fastapi-demo", cfg.Keycloak.Realm)
				assert.Equal(t, "fastapi-client", cfg.Keycloak.ClientID)
				assert.Equal(t, "admin", cfg.Keycloak.AdminRole)
				assert.False(t, cfg.Keycloak.VerifyAudience)
				assert.Equal(t, "fastapi-client", cfg.Keycloak.Audience)
				assert.Zero(t, cfg.Keycloak.JWKSCacheTTL)
				assert.Equal(t, 10*time.Second, cfg.Keycloak.HTTPTimeout)
				assert.Equal(t, "access_token", cfg.Session.CookieName)
				assert.False(t, cfg.Session.CookieSecure)
				assert.False(t, cfg.Audit.Enabled)
			},
		},
		{
			name: "keycloak overrides",
			envVars: map[string]string{
				"KEYCLOAK_SERVER_URL":      "https://sso.example.com/",
				"KEYCLOAK_REALM":           "staff",
				"KEYCLOAK_CLIENT_ID":       "portal",
				"KEYCLOAK_CLIENT_SECRET":   "s3cret",
				"KEYCLOAK_ADMIN_ROLE":      "portal-admin",
				"KEYCLOAK_VERIFY_AUDIENCE": "true",
				"KEYCLOAK_AUDIENCE":        "account",
				"KEYCLOAK_JWKS_CACHE_TTL":  "5m",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://sso.example.com", cfg.Keycloak.ServerURL)
				assert.Equal(t, "staff", cfg.Keycloak.Realm)
				assert.Equal(t, "s3cret", cfg.Keycloak.ClientSecret)
				assert.Equal(t, "portal-admin", cfg.Keycloak.AdminRole)
				assert.True(t, cfg.Keycloak.VerifyAudience)
				assert.Equal(t, "account", cfg.Keycloak.Audience)
				assert.Equal(t, 5*time.Minute, cfg.Keycloak.JWKSCacheTTL)
				assert.Equal(t, "https://sso.example.com/realms/staff/protocol/openid-connect/token", cfg.Keycloak.TokenURL())
				assert.Equal(t, "https://sso.example.com/realms/staff/protocol/openid-connect/certs", cfg.Keycloak.CertsURL())
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "CORS origins are split and trimmed",
			envVars: map[string]string{
				"CORS_ALLOWED_ORIGINS": "https://a.example.com, https://b.example.com,",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
			},
		},
		{
			name: "audit with database url",
			envVars: map[string]string{
				"AUDIT_ENABLED":      "true",
				"AUDIT_WORKER_COUNT": "4",
				"DATABASE_URL":       "postgres://portal:pw@db.internal:5433/audit?sslmode=disable",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Audit.Enabled)
				assert.Equal(t, 4, cfg.Audit.WorkerCount)
				assert.Equal(t, "host=db.internal port=5433 database=audit", cfg.Database.LogString())
			},
		},
		{
			name: "audit without database",
			envVars: map[string]string{
				"AUDIT_ENABLED": "true",
			},
			wantErr: true,
		},
		{
			name: "invalid keycloak url",
			envVars: map[string]string{
				"KEYCLOAK_SERVER_URL": "keycloak:8080",
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			envVars: map[string]string{
				"LOG_LEVEL": "verbose",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Keycloak: KeycloakConfig{
				ServerURL: "http://localhost:8080",
				Realm:     "demo",
				ClientID:  "client",
				AdminRole: "admin",
			},
			Audit:         AuditConfig{WorkerCount: 1},
			Observability: ObservabilityConfig{LogLevel: "info", LogFormat: "json"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing realm", mutate: func(c *Config) { c.Keycloak.Realm = "" }, errMsg: "realm is required"},
		{name: "missing client id", mutate: func(c *Config) { c.Keycloak.ClientID = "" }, errMsg: "client ID is required"},
		{name: "relative server url", mutate: func(c *Config) { c.Keycloak.ServerURL = "/auth" }, errMsg: "absolute http(s) URL"},
		{name: "negative cache ttl", mutate: func(c *Config) { c.Keycloak.JWKSCacheTTL = -time.Second }, errMsg: "must not be negative"},
		{
			name:   "audit without database",
			mutate: func(c *Config) { c.Audit.Enabled = true },
			errMsg: "database configuration required",
		},
		{
			name: "audit with zero workers",
			mutate: func(c *Config) {
				c.Audit = AuditConfig{Enabled: true}
				c.Database.Host = "localhost"
			},
			errMsg: "worker count",
		},
		{name: "bad log format", mutate: func(c *Config) { c.Observability.LogFormat = "xml" }, errMsg: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		environment string
		want        bool
	}{
		{"production", true},
		{"prod", true},
		{"development", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("connection string wins", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "postgres://x", Host: "ignored"}
		assert.Equal(t, "postgres://x", cfg.DSN())
	})

	t.Run("built from fields", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
		assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", cfg.DSN())
		assert.NotContains(t, cfg.LogString(), "password")
	})
}
