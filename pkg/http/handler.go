package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/txn2/presence/pkg/auth"
	"github.com/txn2/presence/pkg/protocol"
	"github.com/txn2/presence/pkg/session"
)

// Hub receives connection events. Open fails once the hub has stopped.
type Hub interface {
	Open(conn session.Conn) error
	Receive(handle string, data []byte)
	Pong(handle string)
	Closed(handle string)
}

// Handler upgrades requests to WebSocket connections attached to a Hub.
type Handler struct {
	hub       Hub
	readLimit int64
	upgrader  websocket.Upgrader
}

// NewHandler creates a handler. allowedOrigins lists the Origin values
// accepted on upgrade; "*" accepts any origin and an empty list accepts only
// same-host requests. Inbound frames are capped at ReadLimit(maxTextLength).
func NewHandler(hub Hub, allowedOrigins []string, maxTextLength int) *Handler {
	return &Handler{
		hub:       hub,
		readLimit: ReadLimit(maxTextLength),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// ServeHTTP upgrades the request. A token found by TokenMiddleware is fed to
// the hub as the connection's first authenticate frame.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(uuid.NewString(), ws)
	go c.writePump()
	if err := h.hub.Open(c); err != nil {
		slog.Debug("connection refused", "conn", c.id, "error", err)
		_ = c.Close(websocket.CloseGoingAway, "Server shutting down.")
		return
	}
	slog.Debug("connection opened", "conn", c.id, "remote", r.RemoteAddr)

	if token := auth.GetToken(r.Context()); token != "" {
		frame, err := json.Marshal(authenticateFrame{Type: protocol.TypeAuthenticate, Payload: token})
		if err == nil {
			h.hub.Receive(c.id, frame)
		}
	}

	go c.readPump(h.hub, h.readLimit)
}

type authenticateFrame struct {
	Type    protocol.MessageType `json:"type"`
	Payload string               `json:"payload"`
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		return slices.ContainsFunc(allowed, func(o string) bool {
			return strings.EqualFold(o, origin)
		})
	}
}
