package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthAction represents the type of authentication event being audited
type AuthAction string

const (
	AuthActionLoginSucceeded AuthAction = "login_succeeded"
	AuthActionLoginFailed    AuthAction = "login_failed"
	AuthActionLogout         AuthAction = "logout"
	AuthActionAccessDenied   AuthAction = "access_denied"
)

// AuthEvent represents one entry of the authentication audit trail.
// It never carries credentials or token material.
type AuthEvent struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Action    AuthAction `json:"action" db:"action"`
	Username  string     `json:"username" db:"username"`
	Subject   string     `json:"subject,omitempty" db:"subject"`
	Reason    string     `json:"reason,omitempty" db:"reason"`
	Path      string     `json:"path" db:"path"`
	IPAddress string     `json:"ip_address" db:"ip_address"`
	UserAgent string     `json:"user_agent" db:"user_agent"`
	RequestID string     `json:"request_id" db:"request_id"`
	Timestamp time.Time  `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuthEvent model
func (AuthEvent) TableName() string {
	return "auth_events"
}

// NewAuthEvent creates a new AuthEvent stamped with the current time
func NewAuthEvent(action AuthAction, username string) *AuthEvent {
	return &AuthEvent{
		ID:        uuid.New(),
		Action:    action,
		Username:  username,
		Timestamp: time.Now().UTC(),
	}
}

// WithSubject sets the token subject
func (e *AuthEvent) WithSubject(subject string) *AuthEvent {
	e.Subject = subject
	return e
}

// WithReason sets a short explanation, such as a rejection description or a missing role
func (e *AuthEvent) WithReason(reason string) *AuthEvent {
	e.Reason = reason
	return e
}

// WithRequest sets request metadata
func (e *AuthEvent) WithRequest(requestID, path, ipAddress, userAgent string) *AuthEvent {
	e.RequestID = requestID
	e.Path = path
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}
