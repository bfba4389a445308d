// Package session tracks live connections and the per-connection state
// layered on top of them: authentication, liveness and room membership.
package session

import (
	"errors"
	"time"

	"github.com/txn2/presence/pkg/protocol"
	"github.com/txn2/presence/pkg/relation"
	"github.com/txn2/presence/pkg/room"
	"github.com/txn2/presence/pkg/social"
)

// ErrUnknownHandle is returned when a connection handle has no session.
var ErrUnknownHandle = errors.New("unknown connection handle")

// Conn is the transport side of a session.
type Conn interface {
	// ID is the connection handle. It is unique for the process lifetime.
	ID() string

	// Send queues a response for delivery.
	Send(resp protocol.Response) error

	// Ping sends a liveness probe.
	Ping() error

	// Close terminates the connection with a close status and reason.
	Close(code int, reason string) error
}

// Session is the state kept for one live connection.
type Session struct {
	Conn Conn

	// Authenticated is set once a valid identity assertion was accepted.
	Authenticated bool

	// Identity is the bound identity. Zero until Authenticated.
	Identity relation.Identity

	// Alive is cleared by every liveness probe and set again on reply.
	Alive bool

	// Room is the room the session's identity is in, or 0.
	Room room.ID

	// Views caches the last derived social views. Never authoritative.
	Views social.Views

	OpenedAt time.Time
}

// Info is a read-only copy of a session for operators.
type Info struct {
	Handle        string    `json:"handle"`
	Name          string    `json:"name,omitempty"`
	Authenticated bool      `json:"authenticated"`
	Room          room.ID   `json:"room,omitempty"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Handle returns the connection handle.
func (s *Session) Handle() string {
	return s.Conn.ID()
}

// Name returns the bound identity name, or "" when unauthenticated.
func (s *Session) Name() string {
	if !s.Authenticated {
		return ""
	}
	return s.Identity.Name
}
