// Package admin provides REST API endpoints for administrative operations:
// browsing the audit trail, registering identities, inspecting the social
// graph of a user, and listing live sessions and rooms.
package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/txn2/presence/pkg/audit"
	"github.com/txn2/presence/pkg/relation"
	"github.com/txn2/presence/pkg/room"
	"github.com/txn2/presence/pkg/session"
)

// Prefix is the path under which the admin API is served.
const Prefix = "/api/v1/admin"

// AuditQuerier reads the audit trail.
type AuditQuerier interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	Count(ctx context.Context, filter audit.QueryFilter) (int, error)
}

// IdentityCreator registers identities.
type IdentityCreator interface {
	CreateIdentity(ctx context.Context, name string) (int64, error)
}

// PresenceReader reads live presence state. It must be safe for concurrent
// use.
type PresenceReader interface {
	Sessions() []session.Info
	RoomOf(name string) room.ID
	Room(id room.ID) (room.Snapshot, error)
}

// Deps holds the components the admin API reads from. Nil members disable
// the routes that need them.
type Deps struct {
	AuditQuerier AuditQuerier
	Relations    relation.Reader
	Identities   IdentityCreator
	Presence     PresenceReader
	Stats        func() any

	DatabaseAvailable bool
}

// Handler provides admin REST API endpoints.
type Handler struct {
	mux        *http.ServeMux
	deps       Deps
	authMiddle func(http.Handler) http.Handler
}

// NewHandler creates a new admin API handler.
func NewHandler(deps Deps, authMiddle func(http.Handler) http.Handler) *Handler {
	h := &Handler{
		mux:        http.NewServeMux(),
		deps:       deps,
		authMiddle: authMiddle,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.authMiddle != nil {
		h.authMiddle(h.mux).ServeHTTP(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all admin API routes.
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET "+Prefix+"/system/info", h.getSystemInfo)

	if h.deps.AuditQuerier != nil {
		h.mux.HandleFunc("GET "+Prefix+"/audit/events", h.listAuditEvents)
		h.mux.HandleFunc("GET "+Prefix+"/audit/events/{id}", h.getAuditEvent)
		h.mux.HandleFunc("GET "+Prefix+"/audit/stats", h.getAuditStats)
	}
	if h.deps.Identities != nil {
		h.mux.HandleFunc("POST "+Prefix+"/identities", h.createIdentity)
	}
	if h.deps.Relations != nil {
		h.mux.HandleFunc("GET "+Prefix+"/identities/{name}/relationships", h.getRelationships)
	}
	if h.deps.Presence != nil {
		h.mux.HandleFunc("GET "+Prefix+"/sessions", h.listSessions)
		h.mux.HandleFunc("GET "+Prefix+"/rooms/{id}", h.getRoom)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
