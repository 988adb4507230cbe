package audit

import (
	"net"
	"net/http"
	"strings"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Middleware records exactly one entry per request after the handler has
// finished. The event is derived from the path suffix and success from a
// 2xx status.
func (l *Logger) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, s := withSlot(r.Context())
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			actor, details := s.snapshot()
			if details == nil {
				details = map[string]any{}
			}
			details["method"] = r.Method
			details["path"] = r.URL.Path
			details["statusCode"] = status
			l.Record(ctx, EventForPath(r.URL.Path), status >= 200 && status < 300, actor, RequestInfo{
				IP:        ClientIP(r),
				UserAgent: r.UserAgent(),
			}, details)
		})
	}
}

// EventForPath maps an auth route to its audit event name.
func EventForPath(path string) string {
	path = strings.TrimSuffix(path, "/")
	switch {
	case strings.HasSuffix(path, "/login"):
		return EventLogin
	case strings.HasSuffix(path, "/logout"):
		return EventLogout
	case strings.HasSuffix(path, "/refresh"):
		return EventTokenRefresh
	case strings.HasSuffix(path, "/register"):
		return EventRegister
	case strings.HasSuffix(path, "/change-password"):
		return EventPasswordChange
	default:
		return EventAuthRequest
	}
}

// ClientIP returns the address resolved by the HTTP layer, falling back to
// the host of the TCP peer. Forwarding headers are never read here; see
// WithClientIP.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
