package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lumora/supportdesk/internal/domain"
)

// MemoryStore holds all in-memory repositories behind one lock. It backs the
// service when no Postgres DSN is configured and is the substrate for tests.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[int64]domain.User
	threads  map[int64]domain.Thread
	messages map[int64][]domain.Message
	releases map[int64]domain.Release
	tracks   map[int64]domain.Track

	nextThreadID  int64
	nextMessageID int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[int64]domain.User),
		threads:       make(map[int64]domain.Thread),
		messages:      make(map[int64][]domain.Message),
		releases:      make(map[int64]domain.Release),
		tracks:        make(map[int64]domain.Track),
		nextThreadID:  1,
		nextMessageID: 1,
	}
}

// SeedUser inserts or replaces an account.
func (s *MemoryStore) SeedUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// SeedRelease inserts a catalog release.
func (s *MemoryStore) SeedRelease(release domain.Release) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases[release.ID] = release
}

// SeedTrack inserts a catalog track.
func (s *MemoryStore) SeedTrack(track domain.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[track.ID] = track
}

// Users returns the UserRepository view.
func (s *MemoryStore) Users() UserRepository { return (*memoryUsers)(s) }

// Threads returns the ThreadRepository view.
func (s *MemoryStore) Threads() ThreadRepository { return (*memoryThreads)(s) }

// Messages returns the MessageRepository view.
func (s *MemoryStore) Messages() MessageRepository { return (*memoryMessages)(s) }

// Releases returns the ReleaseRepository view.
func (s *MemoryStore) Releases() ReleaseRepository { return (*memoryReleases)(s) }

type memoryUsers MemoryStore

func (s *memoryUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (s *memoryUsers) ListArtists(_ context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.User
	for _, user := range s.users {
		if user.Role == domain.RoleArtist {
			result = append(result, user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FullName < result[j].FullName })
	return result, nil
}

type memoryThreads MemoryStore

func (s *memoryThreads) Create(_ context.Context, thread *domain.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	thread.ID = s.nextThreadID
	s.nextThreadID++
	thread.CreatedAt = now
	thread.UpdatedAt = now
	thread.LastMessageAt = now
	s.threads[thread.ID] = *thread
	return nil
}

func (s *memoryThreads) Update(_ context.Context, thread *domain.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.threads[thread.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	rating := stored.Rating
	stored = *thread
	stored.Rating = rating // rating only moves through SetRating
	stored.UpdatedAt = time.Now()
	s.threads[thread.ID] = stored
	return nil
}

func (s *memoryThreads) GetByID(_ context.Context, id int64) (*domain.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &thread, nil
}

func (s *memoryThreads) ListByArtist(_ context.Context, artistID int64) ([]domain.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Thread
	for _, thread := range s.threads {
		if thread.ArtistID == artistID {
			result = append(result, thread)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	return result, nil
}

func (s *memoryThreads) ListSummaries(_ context.Context, viewerID int64, filter ThreadFilter) ([]domain.ThreadSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.ThreadSummary
	for _, thread := range s.threads {
		if filter.ArtistID != nil && thread.ArtistID != *filter.ArtistID {
			continue
		}
		if filter.Status != nil && thread.Status != *filter.Status {
			continue
		}
		summary := domain.ThreadSummary{Thread: thread}
		if artist, ok := s.users[thread.ArtistID]; ok {
			summary.ArtistUsername = artist.Username
			summary.ArtistName = artist.FullName
			summary.ArtistAvatar = artist.Avatar
		}
		log := s.messages[thread.ID]
		for i := len(log) - 1; i >= 0; i-- {
			if filter.ArtistID != nil && log[i].InternalNote {
				continue
			}
			summary.LastMessage = log[i].Body
			break
		}
		for _, msg := range log {
			if msg.IsRead || msg.SenderID == viewerID {
				continue
			}
			if filter.ArtistID != nil && msg.InternalNote {
				continue
			}
			summary.UnreadCount++
		}
		result = append(result, summary)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *memoryThreads) SetRating(_ context.Context, id int64, rating int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if thread.Status != domain.ThreadStatusResolved || thread.Rating != nil {
		return false, nil
	}
	thread.Rating = &rating
	thread.UpdatedAt = time.Now()
	s.threads[id] = thread
	return true, nil
}

func (s *memoryThreads) TouchLastMessage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[id]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	if now.After(thread.LastMessageAt) {
		thread.LastMessageAt = now
	}
	thread.UpdatedAt = now
	s.threads[id] = thread
	return nil
}

type memoryMessages MemoryStore

func (s *memoryMessages) Create(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = s.nextMessageID
	s.nextMessageID++
	msg.CreatedAt = time.Now()
	if sender, ok := s.users[msg.SenderID]; ok {
		msg.SenderName = sender.FullName
		msg.SenderRole = sender.Role
	}
	s.messages[msg.ThreadID] = append(s.messages[msg.ThreadID], *msg)
	return nil
}

func (s *memoryMessages) ListByThread(_ context.Context, threadID int64) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.messages[threadID]
	result := make([]domain.Message, len(log))
	copy(result, log)
	return result, nil
}

func (s *memoryMessages) MarkRead(_ context.Context, threadID, readerID int64, skipInternal bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var flipped int64
	log := s.messages[threadID]
	for i := range log {
		if log[i].IsRead || log[i].SenderID == readerID {
			continue
		}
		if skipInternal && log[i].InternalNote {
			continue
		}
		log[i].IsRead = true
		flipped++
	}
	return flipped, nil
}

func (s *memoryMessages) CountUnread(_ context.Context, threadID, viewerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, msg := range s.messages[threadID] {
		if !msg.IsRead && msg.SenderID != viewerID {
			count++
		}
	}
	return count, nil
}

func (s *memoryMessages) TotalUnread(_ context.Context, viewerID int64, artistOnly bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for threadID, log := range s.messages {
		if artistOnly {
			thread, ok := s.threads[threadID]
			if !ok || thread.ArtistID != viewerID {
				continue
			}
		}
		for _, msg := range log {
			if msg.IsRead || msg.SenderID == viewerID {
				continue
			}
			if artistOnly && msg.InternalNote {
				continue
			}
			count++
		}
	}
	return count, nil
}

type memoryReleases MemoryStore

func (s *memoryReleases) GetRelease(_ context.Context, id int64) (*domain.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, ok := s.releases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &release, nil
}

func (s *memoryReleases) GetTrack(_ context.Context, id int64) (*domain.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	track, ok := s.tracks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if release, ok := s.releases[track.ReleaseID]; ok {
		track.ReleaseTitle = release.Title
	}
	return &track, nil
}

func (s *memoryReleases) ListByArtist(_ context.Context, artistID int64) ([]domain.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Release
	for _, release := range s.releases {
		if release.ArtistID == artistID {
			result = append(result, release)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (s *memoryReleases) ListTracksByArtist(_ context.Context, artistID int64) ([]domain.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Track
	for _, track := range s.tracks {
		release, ok := s.releases[track.ReleaseID]
		if !ok || release.ArtistID != artistID {
			continue
		}
		track.ReleaseTitle = release.Title
		result = append(result, track)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}
