package notify

import (
	"context"
	"time"

	"fives.org/internal/ws"
)

// Event types raised by the domain and pushed to sockets.
const (
	EventAuditAssigned  = "audit_assigned"
	EventActionCreated  = "action_created"
	EventActionOverdue  = "action_overdue"
	EventAuditCompleted = "audit_completed"
)

// Priority levels carried on live messages.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Event is one notification occurrence. DefaultRecipients are usernames.
type Event struct {
	Type              string
	Title             string
	Message           string
	Data              map[string]any
	Priority          string
	DefaultRecipients []string
}

// Rule is a stored notification rule. TriggerConditions and Actions are raw
// JSON documents parsed on every evaluation.
type Rule struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	Active            bool     `json:"isActive" yaml:"active"`
	TriggerConditions string   `json:"triggerConditions" yaml:"trigger_conditions"`
	Actions           string   `json:"actions" yaml:"actions"`
	Recipients        []string `json:"recipients" yaml:"recipients"`
}

// ActionItem is a corrective action tracked for the overdue sweep.
type ActionItem struct {
	ID         string
	Title      string
	AssignedTo string
	DueDate    time.Time
	Status     string
}

// AuditItem is an audit tracked for the low-score sweep.
type AuditItem struct {
	ID          string
	Zone        string
	Auditor     string
	Status      string
	Score       float64
	CompletedAt time.Time
}

// Action and audit statuses the sweeps care about.
const (
	ActionStatusCompleted = "completed"
	ActionStatusClosed    = "closed"
	AuditStatusCompleted  = "completed"
)

// Pusher delivers live messages to connected users. It returns the number of
// sockets the message was queued on.
type Pusher interface {
	SendToUser(username string, msg ws.Message) int
}

// Mailer sends one email to one recipient.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// RuleStore lists active notification rules.
type RuleStore interface {
	ActiveRules(ctx context.Context) ([]Rule, error)
}

// WorkSource lists the work items inspected by the sweeps.
type WorkSource interface {
	OpenActions(ctx context.Context) ([]ActionItem, error)
	CompletedAudits(ctx context.Context) ([]AuditItem, error)
}
