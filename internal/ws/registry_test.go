package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fives.org/internal/apperr"
	"fives.org/internal/auth"
	"fives.org/internal/obs"
)

type tokenTable map[string]auth.User

func (t tokenTable) Authenticate(_ context.Context, token string) (auth.User, error) {
	if token == "expired" {
		return auth.User{}, auth.ErrTokenExpired
	}
	u, ok := t[token]
	if !ok {
		return auth.User{}, auth.ErrTokenInvalid
	}
	return u, nil
}

var testUsers = tokenTable{
	"alice-token": {ID: 1, Username: "alice", Role: auth.RoleAuditor, Active: true},
	"bob-token":   {ID: 2, Username: "bob", Role: auth.RoleAdmin, Active: true},
	"carol-token": {ID: 3, Username: "carol", Role: auth.RoleAdmin, Active: true},
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *httptest.Server) {
	t.Helper()
	opts = append([]Option{WithLogger(obs.NewTestLogger(io.Discard))}, opts...)
	reg := NewRegistry(testUsers, opts...)
	srv := httptest.NewServer(reg)
	t.Cleanup(srv.Close)
	return reg, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, TypeConnectionEstablished, welcome.Type)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRejectsMissingAndBadTokens(t *testing.T) {
	_, srv := newTestRegistry(t)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	cases := map[string]string{
		"":               apperr.CodeAuthentication,
		"?token=nope":    apperr.CodeTokenInvalid,
		"?token=expired": apperr.CodeTokenExpired,
	}
	for query, code := range cases {
		_, resp, err := websocket.DefaultDialer.Dial(base+query, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake, query)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, query)
		var body apperr.Body
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		_ = resp.Body.Close()
		assert.Equal(t, code, body.Error.Code, query)
	}
}

func TestConnectionEstablishedAndPingPong(t *testing.T) {
	reg, srv := newTestRegistry(t)
	conn := dial(t, srv, "alice-token")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, TypePong, readMessage(t, conn).Type)

	// Malformed and unknown messages are ignored without closing the socket.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, TypePong, readMessage(t, conn).Type)
	assert.Equal(t, 1, reg.ConnectionCount("alice"))
}

func TestSendToUserReachesRemainingSockets(t *testing.T) {
	reg, srv := newTestRegistry(t)
	conns := []*websocket.Conn{
		dial(t, srv, "alice-token"),
		dial(t, srv, "alice-token"),
		dial(t, srv, "alice-token"),
	}
	require.Eventually(t, func() bool { return reg.ConnectionCount("alice") == 3 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conns[0].Close())
	require.Eventually(t, func() bool { return reg.ConnectionCount("alice") == 2 }, 2*time.Second, 10*time.Millisecond)

	n := reg.SendToUser("alice", Message{Type: "audit_assigned", Title: "New audit"})
	assert.Equal(t, 2, n)
	for _, c := range conns[1:] {
		msg := readMessage(t, c)
		assert.Equal(t, "audit_assigned", msg.Type)
		assert.Equal(t, "New audit", msg.Title)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestSendToOfflineUserIsNoop(t *testing.T) {
	reg, _ := newTestRegistry(t)
	assert.Equal(t, 0, reg.SendToUser("nobody", Message{Type: "action_overdue"}))
	assert.Equal(t, 0, reg.SendToRole(auth.RoleAdmin, Message{Type: "action_overdue"}))
	assert.Equal(t, 0, reg.SendToAllUsers(Message{Type: "action_overdue"}))
	assert.Empty(t, reg.ConnectedUsers())
}

func TestRoleAndBroadcastDelivery(t *testing.T) {
	reg, srv := newTestRegistry(t)
	alice := dial(t, srv, "alice-token")
	bob := dial(t, srv, "bob-token")
	carol := dial(t, srv, "carol-token")
	require.Eventually(t, func() bool { return len(reg.ConnectedUsers()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice", "bob", "carol"}, reg.ConnectedUsers())

	assert.Equal(t, 2, reg.SendToRole(auth.RoleAdmin, Message{Type: "audit_completed"}))
	assert.Equal(t, "audit_completed", readMessage(t, bob).Type)
	assert.Equal(t, "audit_completed", readMessage(t, carol).Type)

	assert.Equal(t, 2, reg.SendToTeam("line-2", Message{Type: "action_created"}))
	assert.Equal(t, "action_created", readMessage(t, bob).Type)
	assert.Equal(t, "action_created", readMessage(t, carol).Type)

	assert.Equal(t, 3, reg.SendToAllUsers(Message{Type: "action_overdue"}))
	// alice saw nothing before the broadcast.
	assert.Equal(t, "action_overdue", readMessage(t, alice).Type)
}

func TestSubscriptionsAreTracked(t *testing.T) {
	reg, srv := newTestRegistry(t)
	conn := dial(t, srv, "alice-token")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "zone:assembly"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "zone:paint"}))
	require.Eventually(t, func() bool { return len(reg.Subscriptions("alice")) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"zone:assembly", "zone:paint"}, reg.Subscriptions("alice"))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "unsubscribe", "channel": "zone:paint"}))
	require.Eventually(t, func() bool { return len(reg.Subscriptions("alice")) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectRemovesEmptyUser(t *testing.T) {
	reg, srv := newTestRegistry(t)
	for i := 0; i < 5; i++ {
		conn := dial(t, srv, "alice-token")
		require.NoError(t, conn.Close())
		require.Eventually(t, func() bool { return reg.ConnectionCount("alice") == 0 }, 2*time.Second, 10*time.Millisecond)
	}
	assert.Empty(t, reg.ConnectedUsers())
}

func TestShutdownClosesSockets(t *testing.T) {
	reg, srv := newTestRegistry(t)
	conn := dial(t, srv, "bob-token")
	require.Eventually(t, func() bool { return reg.ConnectionCount("bob") == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Empty(t, reg.ConnectedUsers())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bob-token"
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestOriginCheck(t *testing.T) {
	_, srv := newTestRegistry(t, WithAllowedOrigins([]string{"http://allowed.example"}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=alice-token"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://allowed.example"}})
	require.NoError(t, err)
	_ = conn.Close()
}
