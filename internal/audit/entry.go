// Package audit records authentication events in a bounded, append-only
// log. The default store is an in-process ring buffer; Redis can replace it.
package audit

import "time"

// Event names recorded for /api/auth routes.
const (
	EventLogin          = "login"
	EventLogout         = "logout"
	EventTokenRefresh   = "token_refresh"
	EventRegister       = "register"
	EventPasswordChange = "password_change"
	EventAuthRequest    = "auth_request"
)

// DefaultCapacity is the ring buffer size used when none is configured.
const DefaultCapacity = 1000

// Entry is one immutable audit record.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	UserID    *int64         `json:"userId,omitempty"`
	Username  string         `json:"username,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Success   bool           `json:"success"`
	Details   map[string]any `json:"details,omitempty"`
}

// Actor identifies who an entry is about.
type Actor struct {
	UserID   int64
	Username string
}
