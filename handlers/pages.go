package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/realm-portal/middleware"
	"github.com/upb/realm-portal/models"
	"github.com/upb/realm-portal/utils"
	"github.com/upb/realm-portal/views"
)

// RecentEventsLimit is how many audit events the admin page lists
const RecentEventsLimit = 20

// EventLister returns the most recent audit events
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]*models.AuthEvent, error)
}

// PageHandler serves the pages behind the auth middleware
type PageHandler struct {
	views     *views.Renderer
	adminRole string
	events    EventLister
	logger    *zap.Logger
}

// NewPageHandler creates a new PageHandler. events may be nil when the audit trail is disabled.
func NewPageHandler(renderer *views.Renderer, adminRole string, events EventLister, logger *zap.Logger) *PageHandler {
	return &PageHandler{
		views:     renderer,
		adminRole: adminRole,
		events:    events,
		logger:    logger,
	}
}

// RootRedirect handles GET /
func (h *PageHandler) RootRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
}

// Home handles GET /home
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
		return
	}

	page := views.NewUserPage("Home", claims, h.adminRole)
	if err := h.views.Home(w, page); err != nil {
		h.renderFailed(w, r, err)
	}
}

// Admin handles GET /admin. Role enforcement happens in the middleware.
func (h *PageHandler) Admin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := middleware.GetClaimsFromContext(ctx)
	if claims == nil {
		http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
		return
	}

	page := views.AdminPage{
		UserPage:     views.NewUserPage("Admin Dashboard", claims, h.adminRole),
		AdminRole:    h.adminRole,
		AuditEnabled: h.events != nil,
	}

	if h.events != nil {
		events, err := h.events.Recent(ctx, RecentEventsLimit)
		if err != nil {
			// The dashboard still renders without the event list
			h.logger.Warn("failed to load audit events",
				zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
				zap.Error(err))
		}
		page.Events = events
	}

	if err := h.views.Admin(w, page); err != nil {
		h.renderFailed(w, r, err)
	}
}

func (h *PageHandler) renderFailed(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("failed to render page",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	_ = utils.WriteError(w, http.StatusInternalServerError, "Failed to render page", nil)
}
