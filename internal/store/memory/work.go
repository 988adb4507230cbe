package memory

import (
	"context"
	"sort"
	"sync"

	"fives.org/internal/notify"
)

var _ notify.WorkSource = (*WorkStore)(nil)

// WorkStore holds the actions and audits inspected by the sweeps.
type WorkStore struct {
	mu      sync.RWMutex
	actions map[string]notify.ActionItem
	audits  map[string]notify.AuditItem
}

// NewWorkStore creates an empty store.
func NewWorkStore() *WorkStore {
	return &WorkStore{
		actions: make(map[string]notify.ActionItem),
		audits:  make(map[string]notify.AuditItem),
	}
}

// PutAction adds or replaces an action.
func (s *WorkStore) PutAction(a notify.ActionItem) {
	s.mu.Lock()
	s.actions[a.ID] = a
	s.mu.Unlock()
}

// PutAudit adds or replaces an audit.
func (s *WorkStore) PutAudit(a notify.AuditItem) {
	s.mu.Lock()
	s.audits[a.ID] = a
	s.mu.Unlock()
}

func (s *WorkStore) OpenActions(ctx context.Context) ([]notify.ActionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notify.ActionItem, 0, len(s.actions))
	for _, a := range s.actions {
		if a.Status == notify.ActionStatusCompleted || a.Status == notify.ActionStatusClosed {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *WorkStore) CompletedAudits(ctx context.Context) ([]notify.AuditItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notify.AuditItem, 0, len(s.audits))
	for _, a := range s.audits {
		if a.Status == notify.AuditStatusCompleted {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}
