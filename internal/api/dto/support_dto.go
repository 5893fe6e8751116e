package dto

import (
	"strings"
	"time"

	"github.com/lumora/supportdesk/internal/domain"
	apperrors "github.com/lumora/supportdesk/pkg/util"
)

// Action names accepted by the POST /support dispatcher.
const (
	ActionCreateThread    = "create_thread"
	ActionSendMessage     = "send_message"
	ActionUpdateStatus    = "update_status"
	ActionUpdatePriority  = "update_priority"
	ActionAssignThread    = "assign_thread"
	ActionAttachRelease   = "attach_release"
	ActionRateThread      = "rate_thread"
	ActionGetArtists      = "get_artists"
	ActionGetUserReleases = "get_user_releases"
)

// Envelope carries the action discriminator; the remaining payload is
// decoded per action.
type Envelope struct {
	Action string `json:"action"`
}

// CreateThreadRequest opens a new thread.
type CreateThreadRequest struct {
	ArtistID  int64  `json:"artist_id"`
	Subject   string `json:"subject"`
	Priority  string `json:"priority"`
	Message   string `json:"message"`
	ReleaseID *int64 `json:"release_id"`
	TrackID   *int64 `json:"track_id"`
}

// SendMessageRequest appends to a thread's log.
type SendMessageRequest struct {
	ThreadID       int64  `json:"thread_id"`
	Message        string `json:"message"`
	AttachmentURL  string `json:"attachment_url"`
	AttachmentName string `json:"attachment_name"`
	AttachmentSize int64  `json:"attachment_size"`
	ReleaseID      *int64 `json:"release_id"`
	TrackID        *int64 `json:"track_id"`
	InternalNote   bool   `json:"internal_note"`
}

func (r *SendMessageRequest) Validate() error {
	if r.ThreadID <= 0 {
		return apperrors.NewValidationError("thread_id required", nil)
	}
	return nil
}

// UpdateStatusRequest moves a thread through the lifecycle.
type UpdateStatusRequest struct {
	ThreadID int64  `json:"thread_id"`
	Status   string `json:"status"`
}

func (r *UpdateStatusRequest) Validate() error {
	if r.ThreadID <= 0 {
		return apperrors.NewValidationError("thread_id required", nil)
	}
	if strings.TrimSpace(r.Status) == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	return nil
}

// UpdatePriorityRequest changes urgency.
type UpdatePriorityRequest struct {
	ThreadID int64  `json:"thread_id"`
	Priority string `json:"priority"`
}

func (r *UpdatePriorityRequest) Validate() error {
	if r.ThreadID <= 0 {
		return apperrors.NewValidationError("thread_id required", nil)
	}
	if strings.TrimSpace(r.Priority) == "" {
		return apperrors.NewValidationError("priority required", nil)
	}
	return nil
}

// AssignThreadRequest sets or clears the staff assignee.
type AssignThreadRequest struct {
	ThreadID   int64  `json:"thread_id"`
	AssigneeID *int64 `json:"assignee_id"`
}

func (r *AssignThreadRequest) Validate() error {
	if r.ThreadID <= 0 {
		return apperrors.NewValidationError("thread_id required", nil)
	}
	return nil
}

// AttachReleaseRequest links a catalog entity to a thread.
type AttachReleaseRequest struct {
	ThreadID  int64  `json:"thread_id"`
	ReleaseID *int64 `json:"release_id"`
	TrackID   *int64 `json:"track_id"`
}

func (r *AttachReleaseRequest) Validate() error {
	if r.ThreadID <= 0 {
		return apperrors.NewValidationError("thread_id required", nil)
	}
	if r.ReleaseID == nil && r.TrackID == nil {
		return apperrors.NewValidationError("release_id or track_id required", nil)
	}
	return nil
}

// RateThreadRequest records the artist's rating.
type RateThreadRequest struct {
	ThreadID int64 `json:"thread_id"`
	Rating   int   `json:"rating"`
}

func (r *RateThreadRequest) Validate() error {
	if r.ThreadID <= 0 {
		return apperrors.NewValidationError("thread_id required", nil)
	}
	if r.Rating < 1 || r.Rating > 5 {
		return apperrors.NewValidationError("rating must be between 1 and 5", nil)
	}
	return nil
}

// ThreadResponse is the wire form of a thread.
type ThreadResponse struct {
	ID            int64     `json:"id"`
	ArtistID      int64     `json:"artist_id"`
	Subject       string    `json:"subject"`
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	AssigneeID    *int64    `json:"assigned_to"`
	Rating        *int      `json:"rating"`
	ReleaseID     *int64    `json:"release_id"`
	TrackID       *int64    `json:"track_id"`
	ReleaseTitle  string    `json:"release_title,omitempty"`
	ReleaseCover  string    `json:"release_cover,omitempty"`
	TrackTitle    string    `json:"track_title,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// ThreadSummaryResponse is the list-view wire form.
type ThreadSummaryResponse struct {
	ThreadResponse
	ArtistUsername string `json:"artist_username"`
	ArtistName     string `json:"artist_name"`
	ArtistAvatar   string `json:"artist_avatar,omitempty"`
	LastMessage    string `json:"last_message"`
	UnreadCount    int    `json:"unread_count"`
}

// MessageResponse is the wire form of a log entry.
type MessageResponse struct {
	ID             int64     `json:"id"`
	ThreadID       int64     `json:"thread_id"`
	SenderID       int64     `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	SenderRole     string    `json:"sender_role"`
	Message        string    `json:"message"`
	MessageType    string    `json:"message_type"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	AttachmentName string    `json:"attachment_name,omitempty"`
	AttachmentSize int64     `json:"attachment_size,omitempty"`
	ReleaseID      *int64    `json:"release_id,omitempty"`
	TrackID        *int64    `json:"track_id,omitempty"`
	InternalNote   bool      `json:"internal_note"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// ThreadLogResponse is the detail view: thread plus its ordered log.
type ThreadLogResponse struct {
	Thread         ThreadResponse    `json:"thread"`
	Messages       []MessageResponse `json:"messages"`
	ArtistReleases []ReleaseResponse `json:"artist_releases,omitempty"`
}

// ThreadListResponse wraps the list view.
type ThreadListResponse struct {
	Threads []ThreadSummaryResponse `json:"threads"`
}

// ArtistResponse is the staff composer directory entry.
type ArtistResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Avatar   string `json:"avatar,omitempty"`
}

// ReleaseResponse is the attach-flow catalog entry.
type ReleaseResponse struct {
	ID       int64  `json:"id"`
	ArtistID int64  `json:"artist_id"`
	Title    string `json:"title"`
	CoverURL string `json:"cover_url,omitempty"`
	Status   string `json:"status,omitempty"`
}

// TrackResponse is the attach-flow track entry.
type TrackResponse struct {
	ID           int64  `json:"id"`
	ReleaseID    int64  `json:"release_id"`
	ReleaseTitle string `json:"release_title"`
	Title        string `json:"title"`
}

// CatalogResponse bundles the caller's releases and tracks.
type CatalogResponse struct {
	Releases []ReleaseResponse `json:"releases"`
	Tracks   []TrackResponse   `json:"tracks"`
}

// UnreadResponse carries the aggregate badge counter.
type UnreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

// PresignResponse answers a direct-upload presign request. Field names
// follow the client contract.
type PresignResponse struct {
	PresignedURL string `json:"presignedUrl"`
	URL          string `json:"url"`
	Key          string `json:"s3Key"`
}

// UploadResponse answers a relay upload. Field names follow the client
// contract.
type UploadResponse struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	Key      string `json:"s3Key"`
}

// FromThread maps a domain thread.
func FromThread(t *domain.Thread) ThreadResponse {
	return ThreadResponse{
		ID:            t.ID,
		ArtistID:      t.ArtistID,
		Subject:       t.Subject,
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		AssigneeID:    t.AssigneeID,
		Rating:        t.Rating,
		ReleaseID:     t.ReleaseID,
		TrackID:       t.TrackID,
		ReleaseTitle:  t.ReleaseTitle,
		ReleaseCover:  t.ReleaseCover,
		TrackTitle:    t.TrackTitle,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		LastMessageAt: t.LastMessageAt,
	}
}

// FromThreadSummaries maps list projections.
func FromThreadSummaries(summaries []domain.ThreadSummary) []ThreadSummaryResponse {
	out := make([]ThreadSummaryResponse, 0, len(summaries))
	for i := range summaries {
		s := &summaries[i]
		out = append(out, ThreadSummaryResponse{
			ThreadResponse: FromThread(&s.Thread),
			ArtistUsername: s.ArtistUsername,
			ArtistName:     s.ArtistName,
			ArtistAvatar:   s.ArtistAvatar,
			LastMessage:    s.LastMessage,
			UnreadCount:    s.UnreadCount,
		})
	}
	return out
}

// FromMessage maps a domain message.
func FromMessage(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ThreadID:       m.ThreadID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SenderRole:     string(m.SenderRole),
		Message:        m.Body,
		MessageType:    string(m.Type),
		AttachmentURL:  m.AttachmentURL,
		AttachmentName: m.AttachmentName,
		AttachmentSize: m.AttachmentSize,
		ReleaseID:      m.ReleaseID,
		TrackID:        m.TrackID,
		InternalNote:   m.InternalNote,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
}

// FromMessages maps a log slice.
func FromMessages(msgs []domain.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, FromMessage(&msgs[i]))
	}
	return out
}

// FromArtists maps directory entries.
func FromArtists(users []domain.User) []ArtistResponse {
	out := make([]ArtistResponse, 0, len(users))
	for _, u := range users {
		out = append(out, ArtistResponse{
			ID:       u.ID,
			Username: u.Username,
			FullName: u.FullName,
			Avatar:   u.Avatar,
		})
	}
	return out
}

// FromReleases maps catalog releases.
func FromReleases(releases []domain.Release) []ReleaseResponse {
	out := make([]ReleaseResponse, 0, len(releases))
	for _, r := range releases {
		out = append(out, ReleaseResponse{
			ID:       r.ID,
			ArtistID: r.ArtistID,
			Title:    r.Title,
			CoverURL: r.CoverURL,
			Status:   r.Status,
		})
	}
	return out
}

// FromTracks maps catalog tracks.
func FromTracks(tracks []domain.Track) []TrackResponse {
	out := make([]TrackResponse, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, TrackResponse{
			ID:           t.ID,
			ReleaseID:    t.ReleaseID,
			ReleaseTitle: t.ReleaseTitle,
			Title:        t.Title,
		})
	}
	return out
}
