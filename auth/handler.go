package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/upb/realm-portal/config"
	"github.com/upb/realm-portal/internal/observability"
	"github.com/upb/realm-portal/keycloak"
	"github.com/upb/realm-portal/middleware"
	"github.com/upb/realm-portal/models"
	"github.com/upb/realm-portal/services/audit"
	"github.com/upb/realm-portal/utils"
	"github.com/upb/realm-portal/views"
)

const (
	// AccessTokenCookieName is the cookie holding the raw access token
	AccessTokenCookieName = "access_token"

	// HomePath is where a successful login lands
	HomePath = "/home"

	// UnverifiedTokenReason marks a logout username read from an unchecked token
	UnverifiedTokenReason = "unverified token"
)

// PasswordExchanger trades user credentials for tokens at the realm token endpoint.
type PasswordExchanger interface {
	ExchangePassword(ctx context.Context, username, password string) (*keycloak.TokenResponse, error)
}

// LoginForm is the submitted login form
type LoginForm struct {
	Username string `form:"username" validate:"required,max=255"`
	Password string `form:"password" validate:"required"`
}

// Handler handles the login form, credential exchange and logout.
type Handler struct {
	session   config.SessionConfig
	exchanger PasswordExchanger
	views     *views.Renderer
	recorder  audit.Recorder
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewHandler creates a new auth handler. A nil recorder discards audit events.
func NewHandler(session config.SessionConfig, exchanger PasswordExchanger, renderer *views.Renderer, recorder audit.Recorder, metrics *observability.Metrics, logger *zap.Logger) *Handler {
	if session.CookieName == "" {
		session.CookieName = AccessTokenCookieName
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Handler{
		session:   session,
		exchanger: exchanger,
		views:     renderer,
		recorder:  recorder,
		metrics:   metrics,
		logger:    logger,
	}
}

// HandleLoginPage handles GET /login
func (h *Handler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, views.LoginPage{})
}

// HandleLogin handles POST /login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	if err := r.ParseForm(); err != nil {
		h.metrics.RecordLogin(observability.LoginInvalid)
		h.renderLogin(w, r, http.StatusBadRequest, views.LoginPage{Error: "Invalid form submission"})
		return
	}

	form := LoginForm{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	if err := utils.ValidateStruct(form); err != nil {
		message := err.Error()
		var validationErr *utils.ValidationError
		if errors.As(err, &validationErr) {
			message = validationErr.Summary()
		}
		h.metrics.RecordLogin(observability.LoginInvalid)
		h.renderLogin(w, r, http.StatusBadRequest, views.LoginPage{Error: message, Username: form.Username})
		return
	}

	tokens, err := h.exchanger.ExchangePassword(ctx, form.Username, form.Password)
	if err != nil {
		description := keycloak.UnavailableMessage
		var exchangeErr *keycloak.ExchangeError
		if errors.As(err, &exchangeErr) {
			description = exchangeErr.Description
		}

		outcome := observability.LoginUnavailable
		if errors.Is(err, keycloak.ErrCredentialsRejected) {
			outcome = observability.LoginRejected
		}
		h.metrics.RecordLogin(outcome)
		h.logger.Warn("login failed",
			zap.String("request_id", requestID),
			zap.String("username", form.Username),
			zap.String("outcome", outcome),
			zap.Error(err))

		h.record(middleware.NewRequestEvent(r, models.AuthActionLoginFailed, form.Username).WithReason(description))

		// Rejections re-render the form with 200
		h.renderLogin(w, r, http.StatusOK, views.LoginPage{Error: description, Username: form.Username})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    tokens.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.metrics.RecordLogin(observability.LoginSucceeded)
	h.logger.Info("login succeeded",
		zap.String("request_id", requestID),
		zap.String("username", form.Username))
	h.record(middleware.NewRequestEvent(r, models.AuthActionLoginSucceeded, form.Username))

	http.Redirect(w, r, HomePath, http.StatusFound)
}

// HandleLogout handles GET /logout. The cookie is cleared whether or not it held a valid token.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var username, reason string
	if cookie, err := r.Cookie(h.session.CookieName); err == nil {
		username = unverifiedUsername(cookie.Value)
		if username != "" {
			reason = UnverifiedTokenReason
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("logout",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("username", username),
		zap.Bool("username_verified", false))
	h.record(middleware.NewRequestEvent(r, models.AuthActionLogout, username).WithReason(reason))

	http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, page views.LoginPage) {
	if err := h.views.Login(w, status, page); err != nil {
		h.logger.Error("failed to render login page",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteError(w, http.StatusInternalServerError, "Failed to render page", nil)
	}
}

func (h *Handler) record(event *models.AuthEvent) {
	if err := h.recorder.Record(event); err != nil {
		h.logger.Debug("audit event not recorded", zap.String("action", string(event.Action)), zap.Error(err))
	}
}

// unverifiedUsername reads preferred_username for the logout audit entry only.
// The token is about to be discarded, so its signature is not checked.
func unverifiedUsername(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	return keycloak.Claims(claims).Username()
}
