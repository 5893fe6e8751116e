package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/lumora/supportdesk/internal/domain"
	"github.com/lumora/supportdesk/internal/events"
	"github.com/lumora/supportdesk/internal/repository"
	apperrors "github.com/lumora/supportdesk/pkg/util"
)

const (
	defaultSubject        = "Новое обращение"
	bootstrapLockTTL      = 10 * time.Second
	unreadCacheTTL        = 15 * time.Second
	releaseAttachmentBody = "Прикреплён релиз"
	trackAttachmentBody   = "Прикреплён трек"
)

// SupportService coordinates the thread lifecycle: creation, messaging,
// status transitions, catalog linking and rating.
type SupportService struct {
	threads    repository.ThreadRepository
	messages   repository.MessageRepository
	users      repository.UserRepository
	releases   repository.ReleaseRepository
	dispatcher events.Dispatcher
	redis      *redis.Client
}

// SupportDependencies bundles collaborators for the support service.
type SupportDependencies struct {
	ThreadRepo  repository.ThreadRepository
	MessageRepo repository.MessageRepository
	UserRepo    repository.UserRepository
	ReleaseRepo repository.ReleaseRepository
	Dispatcher  events.Dispatcher
	Redis       *redis.Client
}

// CreateThreadInput describes thread creation payload.
type CreateThreadInput struct {
	ArtistID       int64
	Subject        string
	Priority       domain.ThreadPriority
	InitialMessage string
	ReleaseID      *int64
	TrackID        *int64
}

// SendMessageInput describes an append to a thread's log.
type SendMessageInput struct {
	ThreadID       int64
	Body           string
	AttachmentURL  string
	AttachmentName string
	AttachmentSize int64
	ReleaseID      *int64
	TrackID        *int64
	InternalNote   bool
}

// AttachReleaseInput links a catalog entity to a thread.
type AttachReleaseInput struct {
	ThreadID  int64
	ReleaseID *int64
	TrackID   *int64
}

// ThreadLog is the full view of one conversation.
type ThreadLog struct {
	Thread         *domain.Thread
	Messages       []domain.Message
	ArtistReleases []domain.Release
}

// NewSupportService constructs the service.
func NewSupportService(deps SupportDependencies) *SupportService {
	return &SupportService{
		threads:    deps.ThreadRepo,
		messages:   deps.MessageRepo,
		users:      deps.UserRepo,
		releases:   deps.ReleaseRepo,
		dispatcher: deps.Dispatcher,
		redis:      deps.Redis,
	}
}

// ListThreads returns summaries visible to the viewer. Staff see the whole
// pool and may filter by status; artists see only their own threads.
func (s *SupportService) ListThreads(ctx context.Context, viewer *domain.User, status *domain.ThreadStatus) ([]domain.ThreadSummary, error) {
	filter := repository.ThreadFilter{}
	if viewer.Role.IsStaff() {
		if status != nil {
			if !domain.ValidStatus(*status) {
				return nil, apperrors.NewValidationError("unknown status filter", nil)
			}
			filter.Status = status
		}
	} else {
		if status != nil {
			return nil, apperrors.NewValidationError("status filter is staff-only", nil)
		}
		filter.ArtistID = &viewer.ID
	}
	summaries, err := s.threads.ListSummaries(ctx, viewer.ID, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return summaries, nil
}

// GetThreadLog returns the thread and its full ordered log, marking the
// viewer's unread messages read. Staff also receive the artist's releases
// for the attach flow; artists never see internal notes.
func (s *SupportService) GetThreadLog(ctx context.Context, viewer *domain.User, threadID int64) (*ThreadLog, error) {
	thread, err := s.accessThread(ctx, viewer, threadID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListByThread(ctx, thread.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !viewer.Role.IsStaff() {
		visible := make([]domain.Message, 0, len(msgs))
		for _, msg := range msgs {
			if msg.InternalNote {
				continue
			}
			visible = append(visible, msg)
		}
		msgs = visible
	}

	// Artists never see internal notes, so their read sweep must not
	// consume the unread state staff rely on.
	if _, err := s.messages.MarkRead(ctx, thread.ID, viewer.ID, !viewer.Role.IsStaff()); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidateUnread(ctx, viewer.ID)

	log := &ThreadLog{Thread: thread, Messages: msgs}
	if viewer.Role.IsStaff() {
		releases, err := s.releases.ListByArtist(ctx, thread.ArtistID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		log.ArtistReleases = releases
	}
	return log, nil
}

// CreateThread opens a new conversation. Staff may target any artist;
// artists only themselves.
func (s *SupportService) CreateThread(ctx context.Context, actor *domain.User, input CreateThreadInput) (*domain.Thread, error) {
	artistID := actor.ID
	if actor.Role.IsStaff() {
		if input.ArtistID == 0 {
			return nil, apperrors.NewValidationError("artist_id required", nil)
		}
		artist, err := s.users.GetByID(ctx, input.ArtistID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("artist", nil)
			}
			return nil, apperrors.MapError(err)
		}
		if artist.Role != domain.RoleArtist {
			return nil, apperrors.NewValidationError("target user is not an artist", nil)
		}
		artistID = artist.ID
	} else if input.ArtistID != 0 && input.ArtistID != actor.ID {
		return nil, apperrors.NewForbidden("artists may only open threads for themselves")
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.ThreadPriorityNormal
	}
	if !domain.ValidPriority(priority) {
		return nil, apperrors.NewValidationError("unknown priority", nil)
	}

	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		subject = defaultSubject
	}

	thread := &domain.Thread{
		ArtistID: artistID,
		Subject:  subject,
		Status:   domain.ThreadStatusNew,
		Priority: priority,
	}
	if err := s.applyCatalogLink(ctx, thread, input.ReleaseID, input.TrackID); err != nil {
		return nil, err
	}

	if err := s.threads.Create(ctx, thread); err != nil {
		return nil, apperrors.MapError(err)
	}

	if body := strings.TrimSpace(input.InitialMessage); body != "" {
		msg := &domain.Message{
			ThreadID: thread.ID,
			SenderID: actor.ID,
			Body:     body,
			Type:     domain.MessageTypeText,
		}
		if err := s.messages.Create(ctx, msg); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventThreadCreated,
		ThreadID: thread.ID,
		Actor:    actorOf(actor),
		Payload: events.ThreadCreatedPayload{
			ArtistID: thread.ArtistID,
			Subject:  thread.Subject,
			Priority: thread.Priority,
		},
	})
	return thread, nil
}

// EnsureArtistThread is the race-safe bootstrap: an artist with zero
// threads gets exactly one created, concurrent calls converge on it.
func (s *SupportService) EnsureArtistThread(ctx context.Context, artist *domain.User) (*domain.Thread, bool, error) {
	if artist.Role.IsStaff() {
		return nil, false, apperrors.NewForbidden("bootstrap is for artists")
	}

	existing, err := s.threads.ListByArtist(ctx, artist.ID)
	if err != nil {
		return nil, false, apperrors.MapError(err)
	}
	if len(existing) > 0 {
		return &existing[0], false, nil
	}

	if s.redis != nil {
		lockKey := fmt.Sprintf("support:bootstrap:%d", artist.ID)
		acquired, err := s.redis.SetNX(ctx, lockKey, "1", bootstrapLockTTL).Result()
		if err == nil && !acquired {
			// Another call holds the lock; wait for its thread to appear.
			for i := 0; i < 3; i++ {
				time.Sleep(100 * time.Millisecond)
				existing, err := s.threads.ListByArtist(ctx, artist.ID)
				if err != nil {
					return nil, false, apperrors.MapError(err)
				}
				if len(existing) > 0 {
					return &existing[0], false, nil
				}
			}
		}
		if acquired {
			defer s.redis.Del(ctx, lockKey)
		}
	}

	// Re-check inside the lock window before creating.
	existing, err = s.threads.ListByArtist(ctx, artist.ID)
	if err != nil {
		return nil, false, apperrors.MapError(err)
	}
	if len(existing) > 0 {
		return &existing[0], false, nil
	}

	thread, err := s.CreateThread(ctx, artist, CreateThreadInput{})
	if err != nil {
		return nil, false, err
	}
	return thread, true, nil
}

// SendMessage appends to a thread's log and bumps its last-message time.
func (s *SupportService) SendMessage(ctx context.Context, actor *domain.User, input SendMessageInput) (*domain.Message, error) {
	thread, err := s.accessThread(ctx, actor, input.ThreadID)
	if err != nil {
		return nil, err
	}
	if input.InternalNote && !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("internal notes are staff-only")
	}

	msg := &domain.Message{
		ThreadID:       thread.ID,
		SenderID:       actor.ID,
		Body:           strings.TrimSpace(input.Body),
		AttachmentURL:  input.AttachmentURL,
		AttachmentName: input.AttachmentName,
		AttachmentSize: input.AttachmentSize,
		ReleaseID:      input.ReleaseID,
		TrackID:        input.TrackID,
		InternalNote:   input.InternalNote,
	}
	if !msg.HasContent() {
		return nil, apperrors.NewValidationError("message requires a body, attachment or catalog link", nil)
	}
	msg.Type = domain.InferMessageType(msg.AttachmentURL)

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.threads.TouchLastMessage(ctx, thread.ID); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidateUnread(ctx, actor.ID)

	s.publishEvent(ctx, events.Event{
		Type:     events.EventMessageAdded,
		ThreadID: thread.ID,
		Actor:    actorOf(actor),
		Payload: events.MessageAddedPayload{
			MessageID:   msg.ID,
			MessageType: msg.Type,
			SenderID:    msg.SenderID,
			BodyPreview: stringPreview(msg.Body, 120),
		},
	})
	return msg, nil
}

// UpdateStatus moves a thread along the lifecycle. Staff-only.
func (s *SupportService) UpdateStatus(ctx context.Context, actor *domain.User, threadID int64, status domain.ThreadStatus) (*domain.Thread, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("status changes are staff-only")
	}
	if !domain.ValidStatus(status) {
		return nil, apperrors.NewValidationError("unknown status", nil)
	}
	thread, err := s.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(thread.Status, status) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{
			"from": thread.Status,
			"to":   status,
		})
	}

	oldStatus := thread.Status
	thread.Status = status
	if err := s.threads.Update(ctx, thread); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventThreadStatusChanged,
		ThreadID: thread.ID,
		Actor:    actorOf(actor),
		Payload: events.ThreadStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: status,
		},
	})
	return thread, nil
}

// UpdatePriority changes thread priority. Staff-only.
func (s *SupportService) UpdatePriority(ctx context.Context, actor *domain.User, threadID int64, priority domain.ThreadPriority) (*domain.Thread, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("priority changes are staff-only")
	}
	if !domain.ValidPriority(priority) {
		return nil, apperrors.NewValidationError("unknown priority", nil)
	}
	thread, err := s.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	thread.Priority = priority
	if err := s.threads.Update(ctx, thread); err != nil {
		return nil, apperrors.MapError(err)
	}
	return thread, nil
}

// AssignThread sets the staff assignee and acknowledges a new thread.
func (s *SupportService) AssignThread(ctx context.Context, actor *domain.User, threadID int64, assigneeID *int64) (*domain.Thread, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("assignment is staff-only")
	}
	if assigneeID != nil {
		assignee, err := s.users.GetByID(ctx, *assigneeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("assignee", nil)
			}
			return nil, apperrors.MapError(err)
		}
		if !assignee.Role.IsStaff() {
			return nil, apperrors.NewValidationError("assignee must be staff", nil)
		}
	}
	thread, err := s.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	oldStatus := thread.Status
	thread.AssigneeID = assigneeID
	if thread.Status == domain.ThreadStatusNew {
		thread.Status = domain.ThreadStatusInProgress
	}
	if err := s.threads.Update(ctx, thread); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventThreadAssigned,
		ThreadID: thread.ID,
		Actor:    actorOf(actor),
		Payload:  events.ThreadAssignedPayload{AssigneeID: assigneeID},
	})
	if oldStatus != thread.Status {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventThreadStatusChanged,
			ThreadID: thread.ID,
			Actor:    actorOf(actor),
			Payload: events.ThreadStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: thread.Status,
			},
		})
	}
	return thread, nil
}

// AttachRelease links a catalog entity: a structured log entry plus a
// thread-level pointer for the header affordance.
func (s *SupportService) AttachRelease(ctx context.Context, actor *domain.User, input AttachReleaseInput) (*domain.Thread, error) {
	if input.ReleaseID == nil && input.TrackID == nil {
		return nil, apperrors.NewValidationError("release_id or track_id required", nil)
	}
	thread, err := s.accessThread(ctx, actor, input.ThreadID)
	if err != nil {
		return nil, err
	}

	if err := s.applyCatalogLink(ctx, thread, input.ReleaseID, input.TrackID); err != nil {
		return nil, err
	}
	if err := s.threads.Update(ctx, thread); err != nil {
		return nil, apperrors.MapError(err)
	}

	body := releaseAttachmentBody
	if input.TrackID != nil {
		body = trackAttachmentBody
	}
	msg := &domain.Message{
		ThreadID:  thread.ID,
		SenderID:  actor.ID,
		Body:      body,
		Type:      domain.MessageTypeText,
		ReleaseID: input.ReleaseID,
		TrackID:   input.TrackID,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.threads.TouchLastMessage(ctx, thread.ID); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventReleaseAttached,
		ThreadID: thread.ID,
		Actor:    actorOf(actor),
		Payload: events.ReleaseAttachedPayload{
			ReleaseID: input.ReleaseID,
			TrackID:   input.TrackID,
		},
	})
	return thread, nil
}

// RateThread records the artist's rating, once, after resolution.
func (s *SupportService) RateThread(ctx context.Context, actor *domain.User, threadID int64, rating int) (*domain.Thread, error) {
	if actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only the artist may rate a thread")
	}
	if !domain.ValidRating(rating) {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5", nil)
	}
	thread, err := s.accessThread(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	if thread.Status != domain.ThreadStatusResolved {
		return nil, apperrors.NewValidationError("thread must be resolved before rating", nil)
	}
	ok, err := s.threads.SetRating(ctx, thread.ID, rating)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("thread already rated", nil)
	}
	thread.Rating = &rating

	s.publishEvent(ctx, events.Event{
		Type:     events.EventThreadRated,
		ThreadID: thread.ID,
		Actor:    actorOf(actor),
		Payload:  events.ThreadRatedPayload{Rating: rating},
	})
	return thread, nil
}

// ListArtists returns all artist accounts for the staff thread composer.
func (s *SupportService) ListArtists(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("artist directory is staff-only")
	}
	artists, err := s.users.ListArtists(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return artists, nil
}

// ListOwnReleases returns the artist's catalog for the attach flow.
func (s *SupportService) ListOwnReleases(ctx context.Context, actor *domain.User) ([]domain.Release, []domain.Track, error) {
	releases, err := s.releases.ListByArtist(ctx, actor.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	tracks, err := s.releases.ListTracksByArtist(ctx, actor.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return releases, tracks, nil
}

// UnreadTotal sums unread foreign messages across threads visible to the
// viewer, with a short-lived redis cache to absorb badge polling.
func (s *SupportService) UnreadTotal(ctx context.Context, viewer *domain.User) (int, error) {
	cacheKey := fmt.Sprintf("support:unread:%d", viewer.ID)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Int(); err == nil {
			return cached, nil
		}
	}
	total, err := s.messages.TotalUnread(ctx, viewer.ID, !viewer.Role.IsStaff())
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if s.redis != nil {
		s.redis.Set(ctx, cacheKey, total, unreadCacheTTL)
	}
	return total, nil
}

func (s *SupportService) getThread(ctx context.Context, threadID int64) (*domain.Thread, error) {
	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("thread", nil)
		}
		return nil, apperrors.MapError(err)
	}
	return thread, nil
}

func (s *SupportService) accessThread(ctx context.Context, viewer *domain.User, threadID int64) (*domain.Thread, error) {
	thread, err := s.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !viewer.Role.IsStaff() && thread.ArtistID != viewer.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return thread, nil
}

// applyCatalogLink validates the entity belongs to the thread's artist and
// denormalizes its display fields onto the thread.
func (s *SupportService) applyCatalogLink(ctx context.Context, thread *domain.Thread, releaseID, trackID *int64) error {
	if trackID != nil {
		track, err := s.releases.GetTrack(ctx, *trackID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("track", nil)
			}
			return apperrors.MapError(err)
		}
		release, err := s.releases.GetRelease(ctx, track.ReleaseID)
		if err != nil {
			return apperrors.MapError(err)
		}
		if release.ArtistID != thread.ArtistID {
			return apperrors.NewValidationError("track does not belong to the thread's artist", nil)
		}
		thread.TrackID = trackID
		thread.TrackTitle = track.Title
		thread.ReleaseID = &release.ID
		thread.ReleaseTitle = release.Title
		thread.ReleaseCover = release.CoverURL
		return nil
	}
	if releaseID != nil {
		release, err := s.releases.GetRelease(ctx, *releaseID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("release", nil)
			}
			return apperrors.MapError(err)
		}
		if release.ArtistID != thread.ArtistID {
			return apperrors.NewValidationError("release does not belong to the thread's artist", nil)
		}
		thread.ReleaseID = releaseID
		thread.ReleaseTitle = release.Title
		thread.ReleaseCover = release.CoverURL
		thread.TrackID = nil
		thread.TrackTitle = ""
	}
	return nil
}

func (s *SupportService) invalidateUnread(ctx context.Context, userID int64) {
	if s.redis == nil {
		return
	}
	s.redis.Del(ctx, fmt.Sprintf("support:unread:%d", userID))
}

func (s *SupportService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func actorOf(user *domain.User) events.Actor {
	return events.Actor{UserID: user.ID, Role: user.Role}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
