package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/realm-portal/models"
	"github.com/upb/realm-portal/repositories"
)

// maxListLimit caps ListRecent regardless of the caller's request
const maxListLimit = 500

// AuthEventRepository implements repositories.AuthEventRepository
type AuthEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuthEventRepository creates a new auth event repository
func NewAuthEventRepository(db *DB, logger *zap.Logger) repositories.AuthEventRepository {
	return &AuthEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new auth event
func (r *AuthEventRepository) Insert(ctx context.Context, event *models.AuthEvent) error {
	query := `
		INSERT INTO auth_events (
			id, action, username, subject, reason, path,
			ip_address, user_agent, request_id, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Action,
		event.Username,
		event.Subject,
		event.Reason,
		event.Path,
		event.IPAddress,
		event.UserAgent,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}

	r.logger.Debug("auth event inserted", zap.String("id", event.ID.String()), zap.String("action", string(event.Action)))
	return nil
}

// ListRecent returns the newest events first
func (r *AuthEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuthEvent, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT id, action, username, subject, reason, path,
		       ip_address, user_agent, request_id, timestamp
		FROM auth_events
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.AuthEvent, 0, limit)
	for rows.Next() {
		var e models.AuthEvent
		if err := rows.Scan(
			&e.ID,
			&e.Action,
			&e.Username,
			&e.Subject,
			&e.Reason,
			&e.Path,
			&e.IPAddress,
			&e.UserAgent,
			&e.RequestID,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auth events: %w", err)
	}

	return events, nil
}
