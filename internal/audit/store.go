package audit

import (
	"context"
	"sync"
)

// Store persists audit entries. Recent returns at most n entries, newest
// first; n <= 0 means every retained entry.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
}

var _ Store = (*RingStore)(nil)

// RingStore keeps the last capacity entries in memory. Appending to a full
// buffer overwrites the oldest entry.
type RingStore struct {
	mu    sync.RWMutex
	buf   []Entry
	next  int
	count int
}

// NewRingStore allocates a buffer of the given capacity.
func NewRingStore(capacity int) *RingStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingStore{buf: make([]Entry, capacity)}
}

// Capacity reports the maximum number of retained entries.
func (s *RingStore) Capacity() int { return len(s.buf) }

// Len reports the number of retained entries.
func (s *RingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *RingStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = e
	s.next = (s.next + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
	return nil
}

func (s *RingStore) Recent(_ context.Context, n int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]Entry, 0, n)
	idx := s.next
	for i := 0; i < n; i++ {
		idx = (idx - 1 + len(s.buf)) % len(s.buf)
		out = append(out, s.buf[idx])
	}
	return out, nil
}
