package domain

import "time"

// ThreadStatus enumerates lifecycle states for support threads.
type ThreadStatus string

const (
	ThreadStatusNew        ThreadStatus = "new"
	ThreadStatusInProgress ThreadStatus = "in_progress"
	ThreadStatusResolved   ThreadStatus = "resolved"
)

// ThreadPriority enumerates urgency.
type ThreadPriority string

const (
	ThreadPriorityNormal ThreadPriority = "normal"
	ThreadPriorityUrgent ThreadPriority = "urgent"
)

// Thread is one support conversation between an artist and the staff pool.
type Thread struct {
	ID            int64
	ArtistID      int64
	Subject       string
	Status        ThreadStatus
	Priority      ThreadPriority
	AssigneeID    *int64
	Rating        *int
	ReleaseID     *int64
	TrackID       *int64
	ReleaseTitle  string
	ReleaseCover  string
	TrackTitle    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastMessageAt time.Time
}

// ThreadSummary is the list-view projection: thread attributes plus
// denormalized artist identity and viewer-relative counters.
type ThreadSummary struct {
	Thread
	ArtistUsername string
	ArtistName     string
	ArtistAvatar   string
	LastMessage    string
	UnreadCount    int
}

// allowedTransitions lists the edges staff may request. resolved is
// terminal: it still accepts messages but never changes status again.
var allowedTransitions = map[ThreadStatus][]ThreadStatus{
	ThreadStatusNew:        {ThreadStatusInProgress, ThreadStatusResolved},
	ThreadStatusInProgress: {ThreadStatusResolved},
	ThreadStatusResolved:   {},
}

// CanTransition reports whether the status edge is allowed.
func CanTransition(current, next ThreadStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known thread status.
func ValidStatus(s ThreadStatus) bool {
	switch s {
	case ThreadStatusNew, ThreadStatusInProgress, ThreadStatusResolved:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p ThreadPriority) bool {
	return p == ThreadPriorityNormal || p == ThreadPriorityUrgent
}

// ValidRating reports whether r is an acceptable thread rating.
func ValidRating(r int) bool {
	return r >= 1 && r <= 5
}
