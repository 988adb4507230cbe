package obs

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_events_total",
			Help: "Authentication events recorded by the audit logger.",
		},
		[]string{"event", "outcome"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by a rate limiter.",
		},
		[]string{"scope"},
	)

	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Open WebSocket connections.",
	})

	wsMessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_messages_sent_total",
			Help: "Messages queued to WebSocket connections.",
		},
		[]string{"type"},
	)

	wsMessagesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_dropped_total",
		Help: "Messages dropped because a connection queue was full.",
	})

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notifications handed to a delivery channel.",
		},
		[]string{"channel", "event"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ready",
		Help: "1 when the service passed its last readiness check.",
	})

	initOnce sync.Once
)

// Init registers all collectors in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			authEventsTotal, rateLimitedTotal,
			wsConnections, wsMessagesSent, wsMessagesDropped,
			notificationsTotal, ready,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count, latency and in-flight gauge.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var knownPaths = map[string]struct{}{
	"/health":                   {},
	"/readyz":                   {},
	"/metrics":                  {},
	"/ws":                       {},
	"/api/auth/login":           {},
	"/api/auth/register":        {},
	"/api/auth/refresh":         {},
	"/api/auth/me":              {},
	"/api/auth/change-password": {},
	"/api/auth/logout":          {},
	"/api/auth/session":         {},
	"/api/admin/audit-logs":     {},
	"/api/admin/users":          {},
	"/api/admin/connections":    {},
}

// CanonicalPath maps a request path onto a bounded label set so unmatched
// URLs cannot blow up metric cardinality.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	if len(raw) > 1 {
		raw = strings.TrimSuffix(raw, "/")
	}
	if _, ok := knownPaths[raw]; ok {
		return raw
	}
	if strings.HasPrefix(raw, "/api/admin/sweeps/") {
		return "/api/admin/sweeps/:kind"
	}
	if strings.HasPrefix(raw, "/api/") {
		return "/api/:unmatched"
	}
	return "/:other"
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// RecordAuthEvent counts one audited authentication event.
func RecordAuthEvent(event string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	authEventsTotal.WithLabelValues(event, outcome).Inc()
}

// RateLimited counts a rejection for the named limiter scope.
func RateLimited(scope string) {
	rateLimitedTotal.WithLabelValues(scope).Inc()
}

// WSConnected and WSDisconnected track open sockets.
func WSConnected()    { wsConnections.Inc() }
func WSDisconnected() { wsConnections.Dec() }

// WSMessageSent counts a message queued for a socket.
func WSMessageSent(msgType string) {
	wsMessagesSent.WithLabelValues(msgType).Inc()
}

// WSMessageDropped counts a message discarded for a slow socket.
func WSMessageDropped() {
	wsMessagesDropped.Inc()
}

// NotificationDispatched counts one delivery attempt on a channel.
func NotificationDispatched(channel, event string) {
	notificationsTotal.WithLabelValues(channel, event).Inc()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the instrumentation wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("obs: response writer does not support hijacking")
	}
	w.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
