package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/realm-portal/auth"
	"github.com/upb/realm-portal/config"
	"github.com/upb/realm-portal/handlers"
	"github.com/upb/realm-portal/internal/observability"
	"github.com/upb/realm-portal/keycloak"
	"github.com/upb/realm-portal/middleware"
	"github.com/upb/realm-portal/repositories"
	"github.com/upb/realm-portal/repositories/postgres"
	"github.com/upb/realm-portal/services/audit"
	"github.com/upb/realm-portal/views"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	DB      *postgres.DB // nil unless the audit trail is enabled

	// Identity provider
	Keys      *keycloak.KeyResolver
	Verifier  *keycloak.Verifier
	Exchanger *keycloak.PasswordExchanger

	// Audit trail
	AuthEvents repositories.AuthEventRepository
	Audit      *audit.Service

	// HTTP
	Views          *views.Renderer
	AuthHandler    *auth.Handler
	AuthMiddleware *middleware.AuthMiddleware
	Pages          *handlers.PageHandler
	Health         *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	if cfg.IsProduction() && !cfg.Session.CookieSecure {
		logger.Warn("access token cookie is not marked Secure in production; set SESSION_COOKIE_SECURE=true")
	}

	deps.initKeycloak(cfg)

	if cfg.Audit.Enabled {
		if err := deps.initAudit(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize audit trail: %w", err)
		}
	}

	if err := deps.initHTTP(cfg); err != nil {
		deps.closeAudit()
		return nil, fmt.Errorf("failed to initialize http handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("realm_url", cfg.Keycloak.RealmURL()),
		zap.Bool("audit_enabled", cfg.Audit.Enabled),
		zap.Bool("jwks_cache", deps.Keys.CachingEnabled()))
	return deps, nil
}

func (d *Dependencies) initKeycloak(cfg *config.Config) {
	d.Keys = keycloak.NewKeyResolver(keycloak.KeyResolverConfig{
		CertsURL:    cfg.Keycloak.CertsURL(),
		CacheTTL:    cfg.Keycloak.JWKSCacheTTL,
		HTTPTimeout: cfg.Keycloak.HTTPTimeout,
	})
	d.Verifier = keycloak.NewVerifier(d.Keys, keycloak.VerifierConfig{
		VerifyAudience: cfg.Keycloak.VerifyAudience,
		Audience:       cfg.Keycloak.Audience,
	})
	d.Exchanger = keycloak.NewPasswordExchanger(keycloak.ExchangerConfig{
		TokenURL:     cfg.Keycloak.TokenURL(),
		ClientID:     cfg.Keycloak.ClientID,
		ClientSecret: cfg.Keycloak.ClientSecret,
		HTTPTimeout:  cfg.Keycloak.HTTPTimeout,
	})
}

// initAudit connects to PostgreSQL, ensures the schema and starts the audit workers
func (d *Dependencies) initAudit(ctx context.Context, cfg *config.Config) error {
	db, err := postgres.NewDB(ctx, cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return err
	}

	d.DB = db
	d.AuthEvents = postgres.NewAuthEventRepository(db, d.Logger)
	d.Audit = audit.NewService(d.AuthEvents, d.Logger, d.Metrics, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		_ = db.Close()
		return err
	}

	d.Logger.Info("audit trail enabled",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

func (d *Dependencies) initHTTP(cfg *config.Config) error {
	renderer, err := views.NewRenderer()
	if err != nil {
		return err
	}
	d.Views = renderer

	// Interface values stay nil when the audit trail is off so the consumers
	// can tell the feature is disabled.
	var (
		recorder audit.Recorder
		events   handlers.EventLister
		dbCheck  handlers.DatabaseChecker
		stats    handlers.AuditStatser
	)
	if d.Audit != nil {
		recorder = d.Audit
		events = d.Audit
		stats = d.Audit
	}
	if d.DB != nil {
		dbCheck = d.DB
	}

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Verifier, cfg.Session.CookieName, recorder, d.Metrics, d.Logger)
	d.AuthHandler = auth.NewHandler(cfg.Session, d.Exchanger, renderer, recorder, d.Metrics, d.Logger)
	d.Pages = handlers.NewPageHandler(renderer, cfg.Keycloak.AdminRole, events, d.Logger)
	d.Health = handlers.NewHealthHandler(dbCheck, d.Keys, stats, d.Logger)
	return nil
}

func (d *Dependencies) closeAudit() []error {
	var errs []error

	if d.Audit != nil {
		if err := d.Audit.Stop(d.Config.Server.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	return errs
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	errs := d.closeAudit()

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
