package ws

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fives.org/internal/auth"
	"fives.org/internal/ids"
)

type enqueueResult int

const (
	enqueued enqueueResult = iota
	dropped
	gone
)

// client is one open socket. The read loop runs on the HTTP handler
// goroutine; writePump is the only writer of data frames.
type client struct {
	id       string
	username string
	userID   int64
	role     auth.Role
	conn     *websocket.Conn
	queue    chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	channels map[string]struct{}
}

func newClient(conn *websocket.Conn, u auth.User, queueSize int) *client {
	return &client{
		id:       ids.New(),
		username: u.Username,
		userID:   u.ID,
		role:     u.Role,
		conn:     conn,
		queue:    make(chan []byte, queueSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
}

func (c *client) enqueue(payload []byte) enqueueResult {
	select {
	case <-c.done:
		return gone
	default:
	}
	select {
	case c.queue <- payload:
		return enqueued
	default:
		return dropped
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) writePump(log logrus.FieldLogger) {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.WithError(err).Debug("websocket write failed")
				c.close()
				return
			}
		}
	}
}

func (c *client) readPump(r *Registry, log logrus.FieldLogger) {
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && !errors.Is(err, websocket.ErrCloseSent) {
				log.WithError(err).Debug("websocket read ended")
			}
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			log.WithError(err).Debug("ignoring malformed websocket message")
			continue
		}
		switch in.Type {
		case TypePing:
			r.send(c, Message{Type: TypePong})
		case TypeSubscribe:
			if in.Channel != "" {
				c.subscribe(in.Channel)
			}
		case TypeUnsubscribe:
			c.unsubscribe(in.Channel)
		default:
			log.WithField("type", in.Type).Info("unknown websocket message type")
		}
	}
}

func (c *client) subscribe(channel string) {
	c.mu.Lock()
	c.channels[channel] = struct{}{}
	c.mu.Unlock()
}

func (c *client) unsubscribe(channel string) {
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
}

func (c *client) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}
