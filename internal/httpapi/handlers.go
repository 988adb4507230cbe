package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"fives.org/internal/apperr"
	"fives.org/internal/audit"
	"fives.org/internal/auth"
	"fives.org/internal/config"
	"fives.org/internal/notify"
	"fives.org/internal/obs"
	"fives.org/internal/ws"
)

// ReadyProbe checks the backing stores. Nil members are skipped.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is built from. Registry and
// Notify are optional; their routes are omitted when nil.
type Deps struct {
	Config   config.Config
	Auth     *auth.Service
	Audit    *audit.Logger
	Registry *ws.Registry
	Notify   *notify.Service
	Ready    readinessChecker
	Logger   logrus.FieldLogger
	Version  string
}

// API is the HTTP layer.
type API struct {
	router   *mux.Router
	cfg      config.Config
	auth     *auth.Service
	audit    *audit.Logger
	registry *ws.Registry
	notify   *notify.Service
	ready    readinessChecker
	log      logrus.FieldLogger
	version  string
	started  time.Time
	now      func() time.Time

	authLimiter    *RateLimiter
	apiLimiter     *RateLimiter
	trustedProxies []netip.Prefix
}

// New builds the router.
func New(d Deps) (*API, error) {
	if d.Auth == nil {
		return nil, errors.New("httpapi: auth service is required")
	}
	if d.Audit == nil {
		return nil, errors.New("httpapi: audit logger is required")
	}
	if d.Ready == nil {
		d.Ready = ReadyProbe{}
	}
	a := &API{
		router:   mux.NewRouter(),
		cfg:      d.Config,
		auth:     d.Auth,
		audit:    d.Audit,
		registry: d.Registry,
		notify:   d.Notify,
		ready:    d.Ready,
		log:      obs.OrDefault(d.Logger).WithField("component", "http"),
		version:  d.Version,
		started:  time.Now(),
		now:      time.Now,
	}
	trusted, err := ParseTrustedProxies(d.Config.HTTP.TrustedProxies)
	if err != nil {
		return nil, err
	}
	a.trustedProxies = trusted
	rl := d.Config.RateLimit
	a.authLimiter = NewRateLimiter("auth", rl.LoginMax, rl.Window, rl.TrackedKeys, clientAgentKey)
	a.apiLimiter = NewRateLimiter("api", rl.MaxRequests, rl.Window, rl.TrackedKeys, audit.ClientIP)
	a.authLimiter.onReject = a.rateLimited
	a.apiLimiter.onReject = a.rateLimited
	a.routes()
	return a, nil
}

func (a *API) routes() {
	r := a.router
	r.HandleFunc("/health", a.Health).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)
	if a.registry != nil {
		r.Handle("/ws", a.registry).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = http.HandlerFunc(a.routeNotFound)
	api.MethodNotAllowedHandler = http.HandlerFunc(a.routeNotFound)
	api.Use(a.apiLimiter.Middleware)

	authRoutes := api.PathPrefix("/auth").Subrouter()
	authRoutes.MethodNotAllowedHandler = http.HandlerFunc(a.routeNotFound)
	// The audit hook wraps the limiter so rejected attempts are recorded too.
	authRoutes.Use(a.audit.Middleware(), a.authLimiter.Middleware)
	authRoutes.HandleFunc("/login", a.login).Methods(http.MethodPost)
	authRoutes.HandleFunc("/register", a.register).Methods(http.MethodPost)
	authRoutes.HandleFunc("/refresh", a.refresh).Methods(http.MethodPost)
	authRoutes.Handle("/me", a.Authenticate(http.HandlerFunc(a.me))).Methods(http.MethodGet)
	authRoutes.Handle("/change-password", a.Authenticate(http.HandlerFunc(a.changePassword))).Methods(http.MethodPut)
	authRoutes.Handle("/logout", a.Authenticate(http.HandlerFunc(a.logout))).Methods(http.MethodPost)
	authRoutes.Handle("/session", a.OptionalAuth(http.HandlerFunc(a.session))).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.MethodNotAllowedHandler = http.HandlerFunc(a.routeNotFound)
	admin.Use(a.Authenticate)
	admin.Handle("/audit-logs", a.RequireAdmin(http.HandlerFunc(a.auditLogs))).Methods(http.MethodGet)
	admin.Handle("/users", a.RequireAdmin(http.HandlerFunc(a.listUsers))).Methods(http.MethodGet)
	admin.Handle("/connections", a.RequireSupervisor(http.HandlerFunc(a.connections))).Methods(http.MethodGet)
	admin.Handle("/sweeps/{kind}", a.RequireAdmin(http.HandlerFunc(a.runSweep))).Methods(http.MethodPost)
}

// Handler returns the router wrapped in the process-wide middleware chain.
func (a *API) Handler() http.Handler {
	expose := !a.cfg.IsProduction()
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.cfg.HTTP.MaxBodyBytes)
	h = CORS(h, a.cfg.HTTP.CORSOrigins)
	if a.cfg.HTTP.SecurityHeaders {
		h = SecurityHeaders(h)
	}
	h = obs.Instrument(h)
	h = Logging(h, a.log)
	h = Recover(h, a.log, expose)
	h = ClientAddress(h, a.trustedProxies)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime":      a.now().Sub(a.started).Seconds(),
		"environment": a.cfg.Environment,
		"version":     a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) routeNotFound(w http.ResponseWriter, r *http.Request) {
	a.writeAppError(w, r, apperr.NotFound("Route "+r.Method+" "+r.URL.Path+" not found"))
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAppError is the single exit for failed requests. Server faults and
// non-operational errors are logged; internals are only exposed outside
// production.
func (a *API) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	if e.Status >= http.StatusInternalServerError || !e.Operational {
		a.log.WithError(err).WithFields(logrus.Fields{
			"request_id": RequestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     e.Status,
		}).Error("request failed")
	}
	apperr.Write(w, r, e, !a.cfg.IsProduction(), 0)
}

func (a *API) rateLimited(w http.ResponseWriter, r *http.Request, scope string, retryAfter time.Duration) {
	obs.RateLimited(scope)
	a.log.WithFields(logrus.Fields{
		"scope": scope,
		"ip":    audit.ClientIP(r),
		"path":  r.URL.Path,
	}).Warn("rate limit exceeded")
	msg := "Too many requests, please try again later"
	if scope == "auth" {
		msg = "Too many authentication attempts, please try again later"
	}
	apperr.Write(w, r, apperr.RateLimit(msg), !a.cfg.IsProduction(), retryAfter)
}
