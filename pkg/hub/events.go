package hub

import (
	"log/slog"

	"github.com/txn2/presence/pkg/protocol"
	"github.com/txn2/presence/pkg/session"
)

type event interface{ isEvent() }

type openEvent struct{ conn session.Conn }

type receiveEvent struct {
	handle string
	data   []byte
}

type pongEvent struct{ handle string }

type closedEvent struct{ handle string }

func (openEvent) isEvent()    {}
func (receiveEvent) isEvent() {}
func (pongEvent) isEvent()    {}
func (closedEvent) isEvent()  {}

// process runs one event to completion.
func (h *Hub) process(ev event) {
	switch ev := ev.(type) {
	case openEvent:
		h.sessions.Open(ev.conn)
	case receiveEvent:
		h.receive(ev.handle, ev.data)
	case pongEvent:
		h.sessions.SetAlive(ev.handle, true)
	case closedEvent:
		h.release(ev.handle)
	}
}

// probe terminates connections that missed the previous probe, probes the
// rest, and pushes the presence snapshot to every live connection.
func (h *Hub) probe() {
	for _, s := range h.sessions.All() {
		if !s.Alive {
			h.terminate(s, protocol.CloseNormal, "Connection timed out.")
			continue
		}
		h.sessions.SetAlive(s.Handle(), false)
		if err := s.Conn.Ping(); err != nil {
			slog.Debug("liveness probe failed", "conn", s.Handle(), "error", err)
		}
	}

	online := protocol.OnlinePeople(h.sessions.OnlineNames())
	for _, s := range h.sessions.All() {
		h.send(s, online)
	}
}

// terminate closes the connection and releases its session immediately; the
// transport's later close notification is then a no-op.
func (h *Hub) terminate(s *session.Session, code int, reason string) {
	slog.Info("closing connection",
		"conn", s.Handle(), "user", s.Name(), "code", code, "reason", reason)
	if err := s.Conn.Close(code, reason); err != nil {
		slog.Debug("close failed", "conn", s.Handle(), "error", err)
	}
	h.release(s.Handle())
}

// release removes the session and takes its identity out of its room.
func (h *Hub) release(handle string) {
	s, ok := h.sessions.Remove(handle)
	if !ok {
		return
	}
	if s.Authenticated && s.Room != 0 {
		h.applyRooms(h.rooms.Release(s.Identity.Name))
	}
}

func (h *Hub) shutdown() {
	for _, s := range h.sessions.All() {
		if err := s.Conn.Close(protocol.CloseGoingAway, "Server shutting down."); err != nil {
			slog.Debug("close failed", "conn", s.Handle(), "error", err)
		}
		h.sessions.Remove(s.Handle())
	}
}

func (h *Hub) send(s *session.Session, resp protocol.Response) {
	if err := s.Conn.Send(resp); err != nil {
		slog.Debug("dropping response", "conn", s.Handle(), "type", int(resp.Type), "error", err)
	}
}
