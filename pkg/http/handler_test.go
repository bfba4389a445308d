package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/presence/pkg/auth"
	"github.com/txn2/presence/pkg/hub"
	"github.com/txn2/presence/pkg/protocol"
	"github.com/txn2/presence/pkg/relation"
	"github.com/txn2/presence/pkg/session"
)

var testKey = []byte("transport-test-key")

type frame struct {
	Type    protocol.ResponseType `json:"type"`
	Payload json.RawMessage       `json:"payload"`
}

func startServer(t *testing.T) string {
	t.Helper()
	return startServerWith(t, hub.Config{Channel: "chat", ProbeInterval: time.Hour})
}

func startServerWith(t *testing.T, cfg hub.Config) string {
	t.Helper()

	store := relation.NewMemoryStore()
	for _, name := range []string{"alice", "bob"} {
		_, err := store.CreateIdentity(context.Background(), name)
		require.NoError(t, err)
	}
	verifier, err := auth.NewJWTVerifier(auth.JWTConfig{SigningKey: testKey})
	require.NoError(t, err)

	h := hub.New(cfg, verifier, store)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()

	srv := httptest.NewServer(TokenMiddleware(NewHandler(h, nil, h.MaxTextLength())))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sign(t *testing.T, subject string) string {
	t.Helper()
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{"chat"},
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Second)),
	})
	s, err := tok.SignedString(testKey)
	require.NoError(t, err)
	return s
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

// readUntil skips frames until one of type rt arrives.
func readUntil(t *testing.T, ws *websocket.Conn, rt protocol.ResponseType) frame {
	t.Helper()
	for {
		if f := read(t, ws); f.Type == rt {
			return f
		}
	}
}

func login(t *testing.T, url, name string) *websocket.Conn {
	t.Helper()
	ws := dial(t, url)
	require.NoError(t, ws.WriteJSON(map[string]any{"type": protocol.TypeAuthenticate, "payload": sign(t, name)}))
	assert.Equal(t, protocol.RespAuthenticated, read(t, ws).Type)
	readUntil(t, ws, protocol.RespRooms)
	return ws
}

func TestHandler_InBandAuthentication(t *testing.T) {
	url := startServer(t)
	ws := dial(t, url)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": protocol.TypeAuthenticate, "payload": sign(t, "alice")}))

	var got []protocol.ResponseType
	for range 5 {
		got = append(got, read(t, ws).Type)
	}
	assert.Equal(t, []protocol.ResponseType{
		protocol.RespAuthenticated,
		protocol.RespFriends,
		protocol.RespFoes,
		protocol.RespFriendRequests,
		protocol.RespRooms,
	}, got)
}

func TestHandler_QueryTokenAuthenticatesOnConnect(t *testing.T) {
	url := startServer(t)
	ws := dial(t, url+"?token="+sign(t, "alice"))

	assert.Equal(t, protocol.RespAuthenticated, read(t, ws).Type)
}

func TestHandler_PolicyViolationClosesSocket(t *testing.T) {
	url := startServer(t)
	ws := dial(t, url)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": protocol.TypeAuthenticate, "payload": "garbage"}))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close error, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "JWT malformed.", closeErr.Text)
}

func TestHandler_DirectMessage(t *testing.T) {
	url := startServer(t)
	alice := login(t, url, "alice")
	bob := login(t, url, "bob")

	require.NoError(t, alice.WriteJSON(map[string]any{
		"type":    protocol.TypeMessage,
		"payload": map[string]string{"recipient": "bob", "text": "hi bob"},
	}))

	var msg protocol.ChatMessage
	require.NoError(t, json.Unmarshal(readUntil(t, bob, protocol.RespMessage).Payload, &msg))
	assert.Equal(t, protocol.ChatMessage{Text: "hi bob", Author: "alice", WindowName: "alice"}, msg)

	require.NoError(t, json.Unmarshal(readUntil(t, alice, protocol.RespMessage).Payload, &msg))
	assert.Equal(t, protocol.ChatMessage{Text: "hi bob", WindowName: "bob"}, msg)
}

func readClose(t *testing.T, ws *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.True(t, errors.As(err, &closeErr), "expected close error, got %v", err)
		return closeErr
	}
}

func TestHandler_StalledPeerDoesNotDelayOthers(t *testing.T) {
	url := startServerWith(t, hub.Config{Channel: "chat", ProbeInterval: 300 * time.Millisecond})

	// bob owns the room and stops reading.
	bob := login(t, url, "bob")
	require.NoError(t, bob.WriteJSON(map[string]any{"type": protocol.TypeCreateRoom}))

	alice := login(t, url, "alice")
	require.NoError(t, alice.WriteJSON(map[string]any{"type": protocol.TypeJoinRoom, "payload": 1}))
	text := strings.Repeat("x", 1900)
	for range 150 {
		require.NoError(t, alice.WriteJSON(map[string]any{
			"type":    protocol.TypeMessage,
			"payload": map[string]string{"text": text},
		}))
	}

	// Let several liveness ticks pass while bob's socket is backed up.
	time.Sleep(time.Second)

	start := time.Now()
	carol := dial(t, url)
	require.NoError(t, carol.WriteJSON(map[string]any{"type": protocol.TypeAuthenticate, "payload": "garbage"}))
	assert.Equal(t, websocket.ClosePolicyViolation, readClose(t, carol).Code)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHandler_ReadLimitFitsEscapedText(t *testing.T) {
	url := startServerWith(t, hub.Config{Channel: "chat", ProbeInterval: time.Hour, MaxTextLength: 2000})
	alice := login(t, url, "alice")
	bob := login(t, url, "bob")

	// Each '<' is written as a six byte escape.
	text := strings.Repeat("<", 2000)
	require.NoError(t, alice.WriteJSON(map[string]any{
		"type":    protocol.TypeMessage,
		"payload": map[string]string{"recipient": "bob", "text": text},
	}))

	var msg protocol.ChatMessage
	require.NoError(t, json.Unmarshal(readUntil(t, bob, protocol.RespMessage).Payload, &msg))
	assert.Equal(t, text, msg.Text)
}

func TestHandler_OverLongTextIsRecoverable(t *testing.T) {
	url := startServerWith(t, hub.Config{Channel: "chat", ProbeInterval: time.Hour, MaxTextLength: 2000})
	alice := login(t, url, "alice")
	login(t, url, "bob")

	require.NoError(t, alice.WriteJSON(map[string]any{
		"type":    protocol.TypeMessage,
		"payload": map[string]string{"recipient": "bob", "text": strings.Repeat("<", 2001)},
	}))
	var reason string
	require.NoError(t, json.Unmarshal(readUntil(t, alice, protocol.RespError).Payload, &reason))
	assert.Equal(t, "Failed to send message: invalid message text: longer than 2000 characters", reason)

	// The connection stays usable.
	require.NoError(t, alice.WriteJSON(map[string]any{
		"type":    protocol.TypeMessage,
		"payload": map[string]string{"recipient": "bob", "text": "still here"},
	}))
	readUntil(t, alice, protocol.RespMessage)
}

func TestHandler_FrameBeyondReadLimitCloses(t *testing.T) {
	url := startServerWith(t, hub.Config{Channel: "chat", ProbeInterval: time.Hour, MaxTextLength: 10})
	ws := dial(t, url)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, make([]byte, ReadLimit(10)+1)))
	assert.Equal(t, websocket.CloseMessageTooBig, readClose(t, ws).Code)
}

type stoppedHub struct{}

func (stoppedHub) Open(session.Conn) error { return hub.ErrStopped }
func (stoppedHub) Receive(string, []byte)  {}
func (stoppedHub) Pong(string)             {}
func (stoppedHub) Closed(string)           {}

func TestHandler_RefusedOpenClosesSocket(t *testing.T) {
	srv := httptest.NewServer(NewHandler(stoppedHub{}, nil, 0))
	t.Cleanup(srv.Close)
	ws := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	closeErr := readClose(t, ws)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	assert.Equal(t, "Server shutting down.", closeErr.Text)
}
