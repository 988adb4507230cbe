package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoWorkSource is returned by the sweeps when the service was built
// without a WorkSource.
var ErrNoWorkSource = errors.New("notify: no work source configured")

// SweepOverdueActions notifies the assignee and the fallback list about
// every open action whose due date is before now. It returns the number of
// actions notified.
func (s *Service) SweepOverdueActions(ctx context.Context, now time.Time) (int, error) {
	if s.work == nil {
		return 0, ErrNoWorkSource
	}
	items, err := s.work.OpenActions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open actions: %w", err)
	}
	count := 0
	for _, a := range items {
		if a.Status == ActionStatusCompleted || a.Status == ActionStatusClosed {
			continue
		}
		if a.DueDate.IsZero() || !a.DueDate.Before(now) {
			continue
		}
		_, err := s.Trigger(ctx, Event{
			Type:    EventActionOverdue,
			Title:   "Action overdue",
			Message: fmt.Sprintf("Action %q was due %s", a.Title, a.DueDate.Format("2006-01-02")),
			Data: map[string]any{
				"actionId": a.ID,
				"dueDate":  a.DueDate,
				"status":   a.Status,
			},
			Priority:          PriorityHigh,
			DefaultRecipients: s.withFallback(a.AssignedTo),
		})
		if err != nil {
			return count, err
		}
		count++
	}
	s.log.WithField("count", count).Info("overdue action sweep finished")
	return count, nil
}

// SweepLowScoreAudits notifies the auditor and the fallback list about every
// completed audit scoring below the passing score.
func (s *Service) SweepLowScoreAudits(ctx context.Context) (int, error) {
	if s.work == nil {
		return 0, ErrNoWorkSource
	}
	items, err := s.work.CompletedAudits(ctx)
	if err != nil {
		return 0, fmt.Errorf("list completed audits: %w", err)
	}
	count := 0
	for _, a := range items {
		if a.Status != AuditStatusCompleted || a.Score >= s.cfg.PassingScore {
			continue
		}
		_, err := s.Trigger(ctx, Event{
			Type:    EventAuditCompleted,
			Title:   "Low audit score",
			Message: fmt.Sprintf("Audit of zone %s scored %.0f", a.Zone, a.Score),
			Data: map[string]any{
				"auditId": a.ID,
				"zone":    a.Zone,
				"score":   a.Score,
			},
			Priority:          PriorityHigh,
			DefaultRecipients: s.withFallback(a.Auditor),
		})
		if err != nil {
			return count, err
		}
		count++
	}
	s.log.WithField("count", count).Info("low score audit sweep finished")
	return count, nil
}

func (s *Service) withFallback(primary string) []string {
	out := make([]string, 0, len(s.cfg.FallbackRecipients)+1)
	if primary != "" {
		out = append(out, primary)
	}
	return append(out, s.cfg.FallbackRecipients...)
}
