package middleware

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/realm-portal/internal/observability"
	"github.com/upb/realm-portal/keycloak"
	"github.com/upb/realm-portal/models"
	"github.com/upb/realm-portal/services/audit"
	"github.com/upb/realm-portal/utils"
)

const (
	// LoginPath is where unauthenticated browsers are sent
	LoginPath = "/login"

	// AccessDeniedBody is the fixed page returned when a role check fails
	AccessDeniedBody = "<h2>Access Denied: Admins only</h2>"
)

// TokenVerifier defines the interface for verifying access tokens
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (keycloak.Claims, error)
}

// AuthMiddleware gates routes on the access token cookie
type AuthMiddleware struct {
	verifier   TokenVerifier
	cookieName string
	recorder   audit.Recorder
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. A nil recorder discards audit events.
func NewAuthMiddleware(verifier TokenVerifier, cookieName string, recorder audit.Recorder, metrics *observability.Metrics, logger *zap.Logger) *AuthMiddleware {
	if recorder == nil {
		recorder = audit.Discard
	}
	return &AuthMiddleware{
		verifier:   verifier,
		cookieName: cookieName,
		recorder:   recorder,
		metrics:    metrics,
		logger:     logger,
	}
}

// RequireAuth verifies the cookie token and stores the claims in the request
// context. Every failure, whatever its cause, redirects to the login page.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			m.logger.Debug("no access token cookie",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}

		claims, err := m.verifier.Verify(ctx, cookie.Value)
		if err != nil {
			reason := keycloak.Reason(err)
			m.metrics.RecordVerification(string(reason))
			m.logger.Warn("token verification failed",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.String("reason", string(reason)),
				zap.Error(err))
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}

		m.metrics.RecordVerification("ok")
		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Subject()),
			zap.String("username", claims.Username()))

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// RequireRole answers 403 with AccessDeniedBody unless the verified claims carry
// the realm role. Must be mounted after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			claims := GetClaimsFromContext(ctx)
			if claims == nil {
				m.logger.Error("claims not found in context",
					zap.String("request_id", requestID))
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			}

			if !keycloak.HasRole(claims, role) {
				m.metrics.RecordAccessDenied(role)
				m.logger.Warn("missing realm role",
					zap.String("request_id", requestID),
					zap.String("username", claims.Username()),
					zap.String("required_role", role),
					zap.Strings("roles", claims.Roles()))

				event := NewRequestEvent(r, models.AuthActionAccessDenied, claims.Username()).
					WithSubject(claims.Subject()).
					WithReason("missing role " + role)
				_ = m.recorder.Record(event)

				_ = utils.WriteHTML(w, http.StatusForbidden, AccessDeniedBody)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewRequestEvent builds an audit event stamped with the request's metadata
func NewRequestEvent(r *http.Request, action models.AuthAction, username string) *models.AuthEvent {
	return models.NewAuthEvent(action, username).
		WithRequest(GetRequestIDFromContext(r.Context()), r.URL.Path, clientIP(r), r.UserAgent())
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
