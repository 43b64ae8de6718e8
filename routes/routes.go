package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/realm-portal/app"
	"github.com/upb/realm-portal/middleware"
	"github.com/upb/realm-portal/utils"
	"github.com/upb/realm-portal/views"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.Health.HandleHealth)
	r.Get("/readyz", deps.Health.HandleReadiness)
	if cfg.Observability.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Handle("/static/*", http.StripPrefix("/static/", views.Static()))

	// Public pages
	r.Get("/", deps.Pages.RootRedirect)
	r.Get("/login", deps.AuthHandler.HandleLoginPage)
	r.Post("/login", deps.AuthHandler.HandleLogin)
	r.Get("/logout", deps.AuthHandler.HandleLogout)

	// Pages behind the access token cookie
	r.Group(func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Get("/home", deps.Pages.Home)
		r.With(deps.AuthMiddleware.RequireRole(cfg.Keycloak.AdminRole)).Get("/admin", deps.Pages.Admin)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "The requested resource was not found")
	})

	return r
}
