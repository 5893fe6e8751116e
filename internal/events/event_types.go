package events

import (
	"time"

	"github.com/lumora/supportdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventThreadCreated       EventType = "thread_created"
	EventThreadStatusChanged EventType = "thread_status_changed"
	EventThreadAssigned      EventType = "thread_assigned"
	EventThreadRated         EventType = "thread_rated"
	EventMessageAdded        EventType = "message_added"
	EventReleaseAttached     EventType = "release_attached"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID int64           `json:"user_id"`
	Role   domain.UserRole `json:"role"`
}

// Event represents a domain event emitted by the support service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ThreadID  int64       `json:"thread_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ThreadCreatedPayload payload.
type ThreadCreatedPayload struct {
	ArtistID int64                 `json:"artist_id"`
	Subject  string                `json:"subject"`
	Priority domain.ThreadPriority `json:"priority"`
}

// ThreadStatusChangedPayload payload.
type ThreadStatusChangedPayload struct {
	OldStatus domain.ThreadStatus `json:"old_status"`
	NewStatus domain.ThreadStatus `json:"new_status"`
}

// ThreadAssignedPayload payload.
type ThreadAssignedPayload struct {
	AssigneeID *int64 `json:"assignee_id,omitempty"`
}

// ThreadRatedPayload payload.
type ThreadRatedPayload struct {
	Rating int `json:"rating"`
}

// MessageAddedPayload payload.
type MessageAddedPayload struct {
	MessageID   int64              `json:"message_id"`
	MessageType domain.MessageType `json:"message_type"`
	SenderID    int64              `json:"sender_id"`
	BodyPreview string             `json:"body_preview"`
}

// ReleaseAttachedPayload payload.
type ReleaseAttachedPayload struct {
	ReleaseID *int64 `json:"release_id,omitempty"`
	TrackID   *int64 `json:"track_id,omitempty"`
}
