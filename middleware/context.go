package middleware

import (
	"context"

	"github.com/upb/realm-portal/keycloak"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ClaimsKey is the context key for verified token claims
	ClaimsKey contextKey = "claims"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetClaimsFromContext retrieves verified claims from context, or nil for an anonymous request
func GetClaimsFromContext(ctx context.Context) keycloak.Claims {
	if claims, ok := ctx.Value(ClaimsKey).(keycloak.Claims); ok {
		return claims
	}
	return nil
}

// WithClaims adds verified claims to the context
func WithClaims(ctx context.Context, claims keycloak.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}
