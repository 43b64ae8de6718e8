package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/realm-portal/keycloak"
	"github.com/upb/realm-portal/middleware"
	"github.com/upb/realm-portal/models"
	"github.com/upb/realm-portal/views"
)

// MockEventLister is a mock implementation of EventLister
type MockEventLister struct {
	mock.Mock
}

func (m *MockEventLister) Recent(ctx context.Context, limit int) ([]*models.AuthEvent, error) {
	args := m.Called(ctx, limit)
	if events := args.Get(0); events != nil {
		return events.([]*models.AuthEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func newRenderer(t *testing.T) *views.Renderer {
	renderer, err := views.NewRenderer()
	require.NoError(t, err)
	return renderer
}

func requestWithClaims(path string, claims keycloak.Claims) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

func userClaims(username string, roles ...interface{}) keycloak.Claims {
	return keycloak.Claims{
		"sub":                "sub-" + username,
		"preferred_username": username,
		"email":              username + "@example.com",
		"realm_access":       map[string]interface{}{"roles": roles},
	}
}

func TestPageHandler_RootRedirect(t *testing.T) {
	handler := NewPageHandler(newRenderer(t), "admin", nil, zap.NewNop())

	w := httptest.NewRecorder()
	handler.RootRedirect(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestPageHandler_Home(t *testing.T) {
	handler := NewPageHandler(newRenderer(t), "admin", nil, zap.NewNop())

	t.Run("renders greeting and claims", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Home(w, requestWithClaims("/home", userClaims("alice", "user")))

		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "Welcome, alice")
		assert.Contains(t, body, "alice@example.com")
		assert.Contains(t, body, "<li>user</li>")
		assert.Contains(t, body, "preferred_username")
		assert.NotContains(t, body, `href="/admin"`)
	})

	t.Run("admin link shown to admins", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Home(w, requestWithClaims("/home", userClaims("root", "admin")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `href="/admin"`)
	})

	t.Run("missing claims redirect to login", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Home(w, httptest.NewRequest(http.MethodGet, "/home", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})
}

func TestPageHandler_Admin(t *testing.T) {
	t.Run("audit disabled", func(t *testing.T) {
		handler := NewPageHandler(newRenderer(t), "admin", nil, zap.NewNop())

		w := httptest.NewRecorder()
		handler.Admin(w, requestWithClaims("/admin", userClaims("root", "admin")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Admin Dashboard")
		assert.NotContains(t, w.Body.String(), "Recent authentication events")
	})

	t.Run("lists recent events", func(t *testing.T) {
		events := new(MockEventLister)
		event := models.NewAuthEvent(models.AuthActionLoginFailed, "mallory").WithReason("Invalid user credentials")
		event.Timestamp = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
		events.On("Recent", mock.Anything, RecentEventsLimit).Return([]*models.AuthEvent{event}, nil)

		handler := NewPageHandler(newRenderer(t), "admin", events, zap.NewNop())

		w := httptest.NewRecorder()
		handler.Admin(w, requestWithClaims("/admin", userClaims("root", "admin")))

		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "Recent authentication events")
		assert.Contains(t, body, "mallory")
		assert.Contains(t, body, "login_failed")
		assert.Contains(t, body, "2024-05-01 12:30:00")
		events.AssertExpectations(t)
	})

	t.Run("event lookup failure still renders", func(t *testing.T) {
		events := new(MockEventLister)
		events.On("Recent", mock.Anything, RecentEventsLimit).Return(nil, errors.New("db down"))

		handler := NewPageHandler(newRenderer(t), "admin", events, zap.NewNop())

		w := httptest.NewRecorder()
		handler.Admin(w, requestWithClaims("/admin", userClaims("root", "admin")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "No events recorded yet.")
	})
}
