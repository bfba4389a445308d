package hub

import (
	"github.com/txn2/presence/pkg/protocol"
	"github.com/txn2/presence/pkg/room"
	"github.com/txn2/presence/pkg/session"
)

// applyRooms delivers a room effect: snapshots to the sessions in each room,
// a no-room acknowledgement to cleared identities, and the listing to every
// authenticated session when it changed. Memberships are recorded before
// anything is sent so a session that moved only hears from its new room.
func (h *Hub) applyRooms(eff room.Effect) {
	for _, up := range eff.Updates {
		for _, name := range up.Recipients {
			h.sessions.ForEachAuthenticated(session.IsNamed(name), func(s *session.Session) {
				h.sessions.SetRoom(s.Handle(), up.Room.ID)
			})
		}
	}
	for _, name := range eff.Cleared {
		h.sessions.ForEachAuthenticated(session.IsNamed(name), func(s *session.Session) {
			h.sessions.SetRoom(s.Handle(), 0)
		})
	}

	for _, up := range eff.Updates {
		resp := protocol.Room(roomView(up.Room))
		h.sessions.ForEachAuthenticated(session.InRoom(up.Room.ID), func(s *session.Session) {
			h.send(s, resp)
		})
	}
	for _, name := range eff.Cleared {
		h.sessions.ForEachAuthenticated(session.IsNamed(name), func(s *session.Session) {
			h.send(s, protocol.NoRoom())
		})
	}
	if eff.ListingChanged {
		h.broadcastRooms()
	}
}

func (h *Hub) broadcastRooms() {
	resp := protocol.Rooms(summaries(h.rooms.List()))
	h.sessions.ForEachAuthenticated(nil, func(s *session.Session) {
		h.send(s, resp)
	})
}

func roomView(snap room.Snapshot) protocol.RoomView {
	history := make([]protocol.ChatEntry, 0, len(snap.History))
	for _, e := range snap.History {
		history = append(history, protocol.ChatEntry{Text: e.Text, Author: e.Author, Timestamp: e.Timestamp})
	}
	return protocol.RoomView{
		ID:      int64(snap.ID),
		Owner:   snap.Owner,
		Members: snap.Members,
		History: history,
	}
}

func summaries(rooms []room.Summary) []protocol.RoomSummary {
	out := make([]protocol.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, protocol.RoomSummary{ID: int64(r.ID), Owner: r.Owner, Members: r.Members})
	}
	return out
}
