package audit

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fives.org/internal/ids"
	"fives.org/internal/obs"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	clientIPKey
	slotKey
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithClientIP records the resolved client address for ClientIP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// slot is filled by handlers further down the chain so that the entry
// written after the handler returns can name the acting user.
type slot struct {
	mu      sync.Mutex
	actor   *Actor
	details map[string]any
}

func withSlot(ctx context.Context) (context.Context, *slot) {
	s := &slot{}
	return context.WithValue(ctx, slotKey, s), s
}

// Attribute names the user a pending audit entry is about. It is a no-op
// outside an audited request.
func Attribute(ctx context.Context, a Actor) {
	s, ok := ctx.Value(slotKey).(*slot)
	if !ok {
		return
	}
	s.mu.Lock()
	s.actor = &a
	s.mu.Unlock()
}

// AddDetail attaches a key/value to the pending audit entry.
func AddDetail(ctx context.Context, key string, value any) {
	s, ok := ctx.Value(slotKey).(*slot)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.details == nil {
		s.details = make(map[string]any)
	}
	s.details[key] = value
	s.mu.Unlock()
}

func (s *slot) snapshot() (*Actor, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor, maps.Clone(s.details)
}

// Logger writes audit entries to a Store and mirrors them to the process log.
type Logger struct {
	store Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewLogger builds a Logger over store. A nil store gets a default ring
// buffer.
func NewLogger(store Store, log logrus.FieldLogger) *Logger {
	if store == nil {
		store = NewRingStore(DefaultCapacity)
	}
	return &Logger{
		store: store,
		log:   obs.OrDefault(log).WithField("component", "audit"),
		now:   time.Now,
	}
}

// RequestInfo is the transport metadata copied onto an entry.
type RequestInfo struct {
	IP        string
	UserAgent string
}

// Record appends one entry. Store failures are logged, never returned, so
// auditing cannot break the request it describes.
func (l *Logger) Record(ctx context.Context, event string, success bool, actor *Actor, info RequestInfo, details map[string]any) Entry {
	e := Entry{
		ID:        ids.New(),
		Timestamp: l.now().UTC(),
		Event:     event,
		IP:        info.IP,
		UserAgent: info.UserAgent,
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Details:   details,
	}
	if actor != nil {
		if actor.UserID > 0 {
			id := actor.UserID
			e.UserID = &id
		}
		e.Username = actor.Username
	}
	obs.RecordAuthEvent(event, success)

	fields := logrus.Fields{
		"event":   e.Event,
		"success": e.Success,
		"ip":      e.IP,
	}
	if e.Username != "" {
		fields["username"] = e.Username
	}
	if e.RequestID != "" {
		fields["request_id"] = e.RequestID
	}
	l.log.WithFields(fields).Info("audit")

	if err := l.store.Append(ctx, e); err != nil {
		l.log.WithError(err).WithField("event", event).Error("audit store append failed")
	}
	return e
}

// Recent returns up to n entries, newest first.
func (l *Logger) Recent(ctx context.Context, n int) ([]Entry, error) {
	return l.store.Recent(ctx, n)
}
