// Package notify turns domain events into live pushes and rule-driven
// emails, and runs the periodic overdue and low-score sweeps.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"fives.org/internal/obs"
	"fives.org/internal/ws"
)

// DefaultPassingScore is the audit score below which the low-score sweep
// raises a notification.
const DefaultPassingScore = 70

// Config tunes the sweeps.
type Config struct {
	// FallbackRecipients receive every sweep notification in addition to
	// the assignee or auditor.
	FallbackRecipients []string
	PassingScore       float64
}

// Service dispatches notifications. It holds no global state; build one in
// the composition root and share it.
type Service struct {
	pusher Pusher
	rules  RuleStore
	mailer Mailer
	work   WorkSource
	cfg    Config
	log    logrus.FieldLogger
}

// NewService wires the collaborators. work may be nil when sweeps are not
// used.
func NewService(pusher Pusher, rules RuleStore, mailer Mailer, work WorkSource, cfg Config, log logrus.FieldLogger) (*Service, error) {
	if pusher == nil {
		return nil, errors.New("notify: pusher is required")
	}
	if rules == nil {
		return nil, errors.New("notify: rule store is required")
	}
	if mailer == nil {
		return nil, errors.New("notify: mailer is required")
	}
	if cfg.PassingScore <= 0 {
		cfg.PassingScore = DefaultPassingScore
	}
	return &Service{
		pusher: pusher,
		rules:  rules,
		mailer: mailer,
		work:   work,
		cfg:    cfg,
		log:    obs.OrDefault(log).WithField("component", "notify"),
	}, nil
}

// Result summarises one Trigger call.
type Result struct {
	Pushed       int `json:"pushed"`
	RulesMatched int `json:"rulesMatched"`
	EmailsSent   int `json:"emailsSent"`
}

// Trigger pushes the event live to its default recipients, then runs every
// active rule whose conditions name the event type. Delivery failures are
// logged; only a failure to load rules is returned.
func (s *Service) Trigger(ctx context.Context, evt Event) (Result, error) {
	var res Result
	msg := ws.Message{
		Type:      evt.Type,
		Title:     evt.Title,
		Message:   evt.Message,
		Data:      evt.Data,
		Timestamp: time.Now().UTC(),
		Priority:  evt.Priority,
	}
	for _, username := range dedupe(evt.DefaultRecipients) {
		n := s.pusher.SendToUser(username, msg)
		if n > 0 {
			obs.NotificationDispatched("websocket", evt.Type)
		}
		res.Pushed += n
	}

	rules, err := s.rules.ActiveRules(ctx)
	if err != nil {
		return res, fmt.Errorf("load notification rules: %w", err)
	}
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		cond, act, err := parseRule(rule)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"rule_id":   rule.ID,
				"rule_name": rule.Name,
			}).Warn("skipping notification rule with invalid JSON")
			continue
		}
		if !slices.Contains(cond.Events, evt.Type) {
			continue
		}
		res.RulesMatched++
		res.EmailsSent += s.execute(ctx, rule, act, evt)
	}
	return res, nil
}

func (s *Service) execute(ctx context.Context, rule Rule, act actions, evt Event) int {
	if !act.Email {
		return 0
	}
	recipients := rule.Recipients
	if len(recipients) == 0 {
		recipients = evt.DefaultRecipients
	}
	subject := evt.Title
	if subject == "" {
		subject = evt.Type
	}
	sent := 0
	for _, to := range dedupe(recipients) {
		if err := s.mailer.Send(ctx, to, subject, evt.Message); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"rule_id":   rule.ID,
				"recipient": to,
			}).Error("notification email failed")
			continue
		}
		obs.NotificationDispatched("email", evt.Type)
		sent++
	}
	return sent
}

type conditions struct {
	Events []string `json:"events"`
}

type actions struct {
	Email bool `json:"email"`
}

func parseRule(r Rule) (conditions, actions, error) {
	var c conditions
	if err := json.Unmarshal([]byte(r.TriggerConditions), &c); err != nil {
		return conditions{}, actions{}, fmt.Errorf("trigger conditions: %w", err)
	}
	var a actions
	if err := json.Unmarshal([]byte(r.Actions), &a); err != nil {
		return conditions{}, actions{}, fmt.Errorf("actions: %w", err)
	}
	return c, a, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
