package supportclient

import "sync"

// ThreadStore holds the client's snapshot of the thread list and the active
// thread's log. Writes are whole-set replacements; message replacements are
// guarded by a generation counter so a response that raced past an
// Activate call cannot overwrite newer state.
type ThreadStore struct {
	mu sync.Mutex

	threads        []ThreadSummary
	activeThreadID int64
	generation     uint64
	messages       []Message
}

// NewThreadStore builds an empty store.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{}
}

// Activate switches the active thread and bumps the generation, clearing
// the message snapshot. It returns the new generation; only a
// ReplaceMessages call carrying it (and the same thread id) will land.
func (s *ThreadStore) Activate(threadID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeThreadID = threadID
	s.generation++
	s.messages = nil
	return s.generation
}

// Deactivate clears the active thread.
func (s *ThreadStore) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeThreadID = 0
	s.generation++
	s.messages = nil
}

// ActiveThread returns the current active thread id and generation.
func (s *ThreadStore) ActiveThread() (int64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeThreadID, s.generation
}

// ReplaceThreads swaps in a fresh thread list snapshot.
func (s *ThreadStore) ReplaceThreads(threads []ThreadSummary) {
	snapshot := make([]ThreadSummary, len(threads))
	copy(snapshot, threads)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = snapshot
}

// ReplaceMessages swaps in the active thread's log. It reports false and
// discards the write when the response is stale: tagged with an old
// generation or a thread that is no longer active.
func (s *ThreadStore) ReplaceMessages(threadID int64, gen uint64, msgs []Message) bool {
	snapshot := make([]Message, len(msgs))
	copy(snapshot, msgs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || threadID != s.activeThreadID {
		return false
	}
	s.messages = snapshot
	return true
}

// Threads returns a copy of the thread list snapshot.
func (s *ThreadStore) Threads() []ThreadSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ThreadSummary, len(s.threads))
	copy(out, s.threads)
	return out
}

// Messages returns a copy of the active thread's log snapshot.
func (s *ThreadStore) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// UnreadTotal recomputes the aggregate badge from the cached summaries.
func (s *ThreadStore) UnreadTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for i := range s.threads {
		total += s.threads[i].UnreadCount
	}
	return total
}
