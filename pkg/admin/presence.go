package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/txn2/presence/pkg/room"
	"github.com/txn2/presence/pkg/session"
)

type sessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
	Total    int            `json:"total"`
}

type roomEntry struct {
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

type roomResponse struct {
	ID      int64       `json:"id"`
	Owner   string      `json:"owner"`
	Members []string    `json:"members"`
	History []roomEntry `json:"history"`
}

// listSessions handles GET /api/v1/admin/sessions.
func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := h.deps.Presence.Sessions()
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions, Total: len(sessions)})
}

// getRoom handles GET /api/v1/admin/rooms/{id}.
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	snap, err := h.deps.Presence.Room(room.ID(id))
	if errors.Is(err, room.ErrNoSuchRoom) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read room")
		return
	}

	resp := roomResponse{
		ID:      int64(snap.ID),
		Owner:   snap.Owner,
		Members: snap.Members,
		History: make([]roomEntry, 0, len(snap.History)),
	}
	for _, e := range snap.History {
		resp.History = append(resp.History, roomEntry{Text: e.Text, Author: e.Author, Timestamp: e.Timestamp})
	}
	writeJSON(w, http.StatusOK, resp)
}
