package ws

import "time"

// Server to client message types.
const (
	TypeConnectionEstablished = "connection_established"
	TypePong                  = "pong"
)

// Client to server message types.
const (
	TypePing        = "ping"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// Message is a server-to-client frame.
type Message struct {
	Type      string         `json:"type"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Priority  string         `json:"priority,omitempty"`
}

type inbound struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}
