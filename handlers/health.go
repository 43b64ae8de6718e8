package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/realm-portal/keycloak"
	"github.com/upb/realm-portal/services/audit"
	"github.com/upb/realm-portal/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// DatabaseChecker reports whether the audit database is usable
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// KeySetProbe fetches the realm's published signing keys
type KeySetProbe interface {
	FetchKeySet(ctx context.Context) (*keycloak.JWKS, error)
}

// AuditStatser reports the state of the audit worker pool
type AuditStatser interface {
	GetStats() audit.Stats
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db     DatabaseChecker
	keys   KeySetProbe
	audit  AuditStatser
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and auditStats are nil when the audit trail is disabled.
func NewHealthHandler(db DatabaseChecker, keys KeySetProbe, auditStats AuditStatser, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		keys:   keys,
		audit:  auditStats,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Liveness only: returns 200 whenever the process can serve requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkIdentityProvider(ctx); err != nil {
		h.logger.Warn("identity provider health check failed", zap.Error(err))
		checks["identity_provider"] = "unhealthy"
		allHealthy = false
	} else {
		checks["identity_provider"] = "healthy"
	}

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			allHealthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	if h.audit != nil {
		stats := h.audit.GetStats()
		if stats.Running {
			checks["audit"] = "healthy"
		} else {
			h.logger.Warn("audit service not running")
			checks["audit"] = "unhealthy"
			allHealthy = false
		}
		// Saturation is reported but does not fail readiness
		if stats.BufferSize > 0 && stats.PendingEvents >= stats.BufferSize {
			checks["audit_buffer"] = "saturated"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// checkIdentityProvider fetches the key set directly, bypassing any key cache
func (h *HealthHandler) checkIdentityProvider(ctx context.Context) error {
	if h.keys == nil {
		return nil
	}
	_, err := h.keys.FetchKeySet(ctx)
	return err
}
