package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/SP23-BSE-106/grain/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered   EventType = "user_registered"
	EventUserLoggedIn     EventType = "user_logged_in"
	EventUserLoggedOut    EventType = "user_logged_out"
	EventSessionRefreshed EventType = "session_refreshed"
	EventUserRoleChanged  EventType = "user_role_changed"
)

// AllEventTypes lists every type the auth service emits.
var AllEventTypes = []EventType{
	EventUserRegistered,
	EventUserLoggedIn,
	EventUserLoggedOut,
	EventSessionRefreshed,
	EventUserRoleChanged,
}

// Actor is whoever caused the event.
type Actor struct {
	UserID string      `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(eventType EventType, userID string, actor Actor, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Actor:     actor,
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	Email string `json:"email"`
}

// SessionPayload is shared by login, logout and refresh events.
type SessionPayload struct {
	SessionID string      `json:"session_id,omitempty"`
	Role      domain.Role `json:"role,omitempty"`
	// PreviousSessionID is set on rotation.
	PreviousSessionID string `json:"previous_session_id,omitempty"`
}

// UserRoleChangedPayload payload.
type UserRoleChangedPayload struct {
	OldRole         domain.Role `json:"old_role"`
	NewRole         domain.Role `json:"new_role"`
	RevokedSessions int         `json:"revoked_sessions"`
}
