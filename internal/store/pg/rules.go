package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"fives.org/internal/notify"
)

var _ notify.RuleStore = (*Store)(nil)

func (s *Store) ActiveRules(ctx context.Context) ([]notify.Rule, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, is_active, trigger_conditions, actions, recipients
		from notification_rules
		where is_active
		order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notify.Rule
	for rows.Next() {
		var (
			r       notify.Rule
			rawRcpt []byte
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Active, &r.TriggerConditions, &r.Actions, &rawRcpt); err != nil {
			return nil, err
		}
		if len(rawRcpt) > 0 {
			if err := json.Unmarshal(rawRcpt, &r.Recipients); err != nil {
				return nil, fmt.Errorf("decode recipients of rule %s: %w", r.ID, err)
			}
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PutRule inserts or replaces a rule.
func (s *Store) PutRule(ctx context.Context, r notify.Rule) error {
	if s.db == nil {
		return errNoDB
	}
	recipients := r.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	rawRcpt, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into notification_rules (id, name, is_active, trigger_conditions, actions, recipients)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (id) do update
		set name = excluded.name,
			is_active = excluded.is_active,
			trigger_conditions = excluded.trigger_conditions,
			actions = excluded.actions,
			recipients = excluded.recipients
	`, r.ID, r.Name, r.Active, r.TriggerConditions, r.Actions, rawRcpt)
	return err
}
