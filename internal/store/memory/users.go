// Package memory holds process-local store implementations. They are the
// default when no database is configured and back most package tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"fives.org/internal/auth"
)

var (
	_ auth.UserStore  = (*UserStore)(nil)
	_ auth.UserLister = (*UserStore)(nil)
)

// UserStore keeps credential records in memory.
type UserStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*auth.User
	byName map[string]int64
}

// NewUserStore creates an empty store.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:   make(map[int64]*auth.User),
		byName: make(map[string]int64),
	}
}

func (s *UserStore) FindByID(ctx context.Context, id int64) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return copyUser(s.byID[id]), nil
}

func (s *UserStore) Create(ctx context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[u.Username]; exists {
		return auth.User{}, auth.ErrUsernameTaken
	}
	s.nextID++
	u.ID = s.nextID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := copyUser(&u)
	s.byID[u.ID] = &stored
	s.byName[u.Username] = u.ID
	return copyUser(&stored), nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// SetActive flips the account's active flag.
func (s *UserStore) SetActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.Active = active
	return nil
}

// List returns every user ordered by id.
func (s *UserStore) List(ctx context.Context) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyUser(u *auth.User) auth.User {
	out := *u
	out.Zones = slices.Clone(u.Zones)
	return out
}
