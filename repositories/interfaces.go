package repositories

import (
	"context"

	"github.com/upb/realm-portal/models"
)

// AuthEventRepository persists the authentication audit trail
type AuthEventRepository interface {
	// Insert stores a single event
	Insert(ctx context.Context, event *models.AuthEvent) error

	// ListRecent returns up to limit events, newest first
	ListRecent(ctx context.Context, limit int) ([]*models.AuthEvent, error)
}
