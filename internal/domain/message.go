package domain

import (
	"strings"
	"time"
)

// MessageType differentiates plain text from attachment-bearing messages.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Message is an append-only entry in a thread's log. Once created it is
// immutable except for the read flag, which only moves false to true.
type Message struct {
	ID             int64
	ThreadID       int64
	SenderID       int64
	SenderName     string
	SenderRole     UserRole
	Body           string
	Type           MessageType
	AttachmentURL  string
	AttachmentName string
	AttachmentSize int64
	ReleaseID      *int64
	TrackID        *int64
	InternalNote   bool
	IsRead         bool
	CreatedAt      time.Time
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// InferMessageType derives the message type from its attachment URL.
func InferMessageType(attachmentURL string) MessageType {
	if attachmentURL == "" {
		return MessageTypeText
	}
	lower := strings.ToLower(attachmentURL)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return MessageTypeImage
		}
	}
	return MessageTypeFile
}

// HasContent reports whether the message carries at least one of a body,
// an attachment, or a catalog link. Empty messages are rejected.
func (m *Message) HasContent() bool {
	if strings.TrimSpace(m.Body) != "" {
		return true
	}
	if m.AttachmentURL != "" {
		return true
	}
	return m.ReleaseID != nil || m.TrackID != nil
}
