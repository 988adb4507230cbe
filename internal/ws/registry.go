// Package ws keeps the live WebSocket connections of authenticated users and
// pushes notifications to them by username, role or to everyone.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fives.org/internal/apperr"
	"fives.org/internal/auth"
	"fives.org/internal/obs"
)

const (
	defaultQueueSize = 32
	writeWait        = 10 * time.Second
	maxMessageSize   = 4096
)

// Authenticator resolves an access token to the live account.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (auth.User, error)
}

// Registry maps usernames to their open sockets. A user may hold any number
// of sockets at once.
type Registry struct {
	authn     Authenticator
	log       logrus.FieldLogger
	upgrader  websocket.Upgrader
	queueSize int
	expose    bool

	mu     sync.RWMutex
	users  map[string]map[*client]struct{}
	closed bool
	active sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Registry) { r.log = l }
}

// WithAllowedOrigins restricts the Origin header accepted on upgrade. "*"
// accepts any origin; an empty list accepts same-host requests only.
func WithAllowedOrigins(origins []string) Option {
	return func(r *Registry) { r.upgrader.CheckOrigin = originChecker(origins) }
}

// WithQueueSize bounds the per-socket outbound queue.
func WithQueueSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithErrorDetails includes error causes in rejection bodies.
func WithErrorDetails(expose bool) Option {
	return func(r *Registry) { r.expose = expose }
}

// NewRegistry creates an empty registry.
func NewRegistry(authn Authenticator, opts ...Option) *Registry {
	r := &Registry{
		authn:     authn,
		queueSize: defaultQueueSize,
		users:     make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = obs.OrDefault(r.log).WithField("component", "ws")
	return r
}

// ServeHTTP authenticates the ?token= query parameter, upgrades the
// connection and serves it until either side closes.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	if token == "" {
		r.reject(w, req, auth.ErrUnauthenticated)
		return
	}
	user, err := r.authn.Authenticate(req.Context(), token)
	if err != nil {
		r.reject(w, req, err)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		r.log.WithError(err).WithField("username", user.Username).Warn("websocket upgrade failed")
		return
	}

	c := newClient(conn, user, r.queueSize)
	if !r.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	defer r.active.Done()

	log := r.log.WithFields(logrus.Fields{"username": c.username, "conn_id": c.id})
	log.Info("websocket connected")

	go c.writePump(log)
	r.send(c, Message{
		Type:    TypeConnectionEstablished,
		Message: "Connected to notifications",
		Data:    map[string]any{"username": c.username, "role": string(c.role)},
	})

	c.readPump(r, log)

	r.unregister(c)
	c.close()
	log.Info("websocket disconnected")
}

func (r *Registry) reject(w http.ResponseWriter, req *http.Request, err error) {
	e := auth.AppError(err)
	if e.Status >= http.StatusInternalServerError {
		r.log.WithError(err).Error("websocket authentication failed")
	}
	apperr.Write(w, req, e, r.expose, 0)
}

func (r *Registry) register(c *client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	set, ok := r.users[c.username]
	if !ok {
		set = make(map[*client]struct{})
		r.users[c.username] = set
	}
	set[c] = struct{}{}
	r.active.Add(1)
	obs.WSConnected()
	return true
}

func (r *Registry) unregister(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[c.username]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.users, c.username)
	}
	obs.WSDisconnected()
}

// SendToUser queues msg on every socket of username and returns how many
// sockets accepted it. Offline users are a no-op.
func (r *Registry) SendToUser(username string, msg Message) int {
	r.mu.RLock()
	targets := make([]*client, 0, len(r.users[username]))
	for c := range r.users[username] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()
	return r.broadcast(targets, msg)
}

// SendToRole queues msg on every socket whose user held role at connect time.
func (r *Registry) SendToRole(role auth.Role, msg Message) int {
	return r.broadcast(r.filter(func(c *client) bool { return c.role == role }), msg)
}

// SendToAllUsers queues msg on every open socket.
func (r *Registry) SendToAllUsers(msg Message) int {
	return r.broadcast(r.filter(func(*client) bool { return true }), msg)
}

// SendToTeam delivers to administrators only; team membership is not
// resolved yet.
//
// Deprecated: use SendToRole or SendToUser until team routing exists.
func (r *Registry) SendToTeam(team string, msg Message) int {
	r.log.WithField("team", team).Debug("team routing not available, delivering to admins")
	return r.SendToRole(auth.RoleAdmin, msg)
}

func (r *Registry) filter(keep func(*client) bool) []*client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*client
	for _, set := range r.users {
		for c := range set {
			if keep(c) {
				out = append(out, c)
			}
		}
	}
	return out
}

func (r *Registry) broadcast(targets []*client, msg Message) int {
	if len(targets) == 0 {
		return 0
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.WithError(err).WithField("type", msg.Type).Error("encode websocket message")
		return 0
	}
	sent := 0
	for _, c := range targets {
		if r.enqueue(c, msg.Type, payload) {
			sent++
		}
	}
	return sent
}

func (r *Registry) send(c *client, msg Message) bool {
	return r.broadcast([]*client{c}, msg) == 1
}

func (r *Registry) enqueue(c *client, msgType string, payload []byte) bool {
	switch c.enqueue(payload) {
	case enqueued:
		obs.WSMessageSent(msgType)
		return true
	case dropped:
		obs.WSMessageDropped()
		r.log.WithFields(logrus.Fields{
			"username": c.username,
			"conn_id":  c.id,
			"type":     msgType,
		}).Warn("websocket queue full, message dropped")
	}
	return false
}

// ConnectionCount reports the number of open sockets for username.
func (r *Registry) ConnectionCount(username string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[username])
}

// ConnectedUsers lists usernames with at least one open socket, sorted.
func (r *Registry) ConnectedUsers() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.users))
	for name := range r.users {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Subscriptions returns the union of channels subscribed by username's
// sockets. Subscriptions are advisory and do not filter delivery.
func (r *Registry) Subscriptions(username string) []string {
	r.mu.RLock()
	targets := make([]*client, 0, len(r.users[username]))
	for c := range r.users[username] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range targets {
		for _, ch := range c.subscriptions() {
			seen[ch] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for ch := range seen {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

// Shutdown refuses new sockets, closes every open one and waits for their
// handlers to return or ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	var all []*client
	for _, set := range r.users {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.Unlock()

	for _, c := range all {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}

	done := make(chan struct{})
	go func() {
		r.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, req.Host)
	}
}
