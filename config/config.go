package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Keycloak      KeycloakConfig
	Session       SessionConfig
	Audit         AuditConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// KeycloakConfig holds the identity provider settings for a single realm.
type KeycloakConfig struct {
	ServerURL    string
	Realm        string
	ClientID     string
	ClientSecret string // Optional: only sent when the client is confidential
	AdminRole    string

	// VerifyAudience is off by default. Keycloak access tokens issued to a public
	// client usually carry "account" as audience rather than the client id.
	VerifyAudience bool
	Audience       string

	// JWKSCacheTTL of zero fetches the key set on every verification.
	JWKSCacheTTL time.Duration
	HTTPTimeout  time.Duration
}

// SessionConfig holds settings for the access token cookie
type SessionConfig struct {
	CookieName   string
	CookieSecure bool
}

// AuditConfig controls the optional authentication audit trail
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	WorkerCount int
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:8000"}),
		},
		Keycloak: KeycloakConfig{
			ServerURL:      strings.TrimRight(getEnv("KEYCLOAK_SERVER_URL", "http://localhost:8080"), "/"),
			Realm:          getEnv("KEYCLOAK_REALM", "fastapi-demo"),
			ClientID:       getEnv("KEYCLOAK_CLIENT_ID", "fastapi-client"),
			ClientSecret:   getEnv("KEYCLOAK_CLIENT_SECRET", ""),
			AdminRole:      getEnv("KEYCLOAK_ADMIN_ROLE", "admin"),
			VerifyAudience: getEnvAsBool("KEYCLOAK_VERIFY_AUDIENCE", false),
			Audience:       getEnv("KEYCLOAK_AUDIENCE", ""),
			JWKSCacheTTL:   getEnvAsDuration("KEYCLOAK_JWKS_CACHE_TTL", 0),
			HTTPTimeout:    getEnvAsDuration("KEYCLOAK_HTTP_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			CookieName:   "access_token",
			CookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", false),
		},
		Audit: AuditConfig{
			Enabled:     getEnvAsBool("AUDIT_ENABLED", false),
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 256),
			WorkerCount: getEnvAsInt("AUDIT_WORKER_COUNT", 2),
		},
		Database: loadDatabaseConfig(),
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if cfg.Keycloak.Audience == "" {
		cfg.Keycloak.Audience = cfg.Keycloak.ClientID
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	u, err := url.Parse(c.Keycloak.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("keycloak server URL must be an absolute http(s) URL, got %q", c.Keycloak.ServerURL)
	}
	if c.Keycloak.Realm == "" {
		return fmt.Errorf("keycloak realm is required")
	}
	if c.Keycloak.ClientID == "" {
		return fmt.Errorf("keycloak client ID is required")
	}
	if c.Keycloak.AdminRole == "" {
		return fmt.Errorf("keycloak admin role is required")
	}
	if c.Keycloak.JWKSCacheTTL < 0 {
		return fmt.Errorf("keycloak JWKS cache TTL must not be negative")
	}

	if c.Audit.Enabled {
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required when audit is enabled: set DATABASE_URL or DB_HOST")
		}
		if c.Audit.WorkerCount < 1 {
			return fmt.Errorf("audit worker count must be at least 1")
		}
	}

	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", c.Observability.LogFormat)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// RealmURL returns the base URL of the configured realm.
func (c *KeycloakConfig) RealmURL() string {
	return fmt.Sprintf("%s/realms/%s", c.ServerURL, c.Realm)
}

// TokenURL returns the realm's OpenID Connect token endpoint.
func (c *KeycloakConfig) TokenURL() string {
	return c.RealmURL() + "/protocol/openid-connect/token"
}

// CertsURL returns the realm's JWKS endpoint.
func (c *KeycloakConfig) CertsURL() string {
	return c.RealmURL() + "/protocol/openid-connect/certs"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password).
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "portal"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "portal_audit"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma-separated variable, dropping empty entries.
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
