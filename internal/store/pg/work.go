package pg

import (
	"context"
	"database/sql"

	"fives.org/internal/notify"
)

var _ notify.WorkSource = (*Store)(nil)

func (s *Store) OpenActions(ctx context.Context) ([]notify.ActionItem, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, title, assigned_to, due_date, status
		from actions
		where status not in ('completed', 'closed')
		order by due_date asc nulls last
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notify.ActionItem
	for rows.Next() {
		var (
			a   notify.ActionItem
			due sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.AssignedTo, &due, &a.Status); err != nil {
			return nil, err
		}
		if due.Valid {
			a.DueDate = due.Time
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) CompletedAudits(ctx context.Context) ([]notify.AuditItem, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, zone, auditor, status, score, completed_at
		from audits
		where status = 'completed'
		order by completed_at asc nulls last
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notify.AuditItem
	for rows.Next() {
		var (
			a    notify.AuditItem
			done sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.Zone, &a.Auditor, &a.Status, &a.Score, &done); err != nil {
			return nil, err
		}
		if done.Valid {
			a.CompletedAt = done.Time
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
