package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/txn2/presence/pkg/relation"
)

const pathParamName = "name"

type createIdentityRequest struct {
	Name string `json:"name"`
}

type identityResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// relationshipsResponse is the social graph of one identity.
type relationshipsResponse struct {
	Name           string   `json:"name"`
	Friends        []string `json:"friends"`
	Foes           []string `json:"foes"`
	FriendRequests []string `json:"friend_requests"`
	Room           int64    `json:"room,omitempty"`
}

// createIdentity handles POST /api/v1/admin/identities. Registering an
// existing name returns its id.
func (h *Handler) createIdentity(w http.ResponseWriter, r *http.Request) {
	var req createIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := h.deps.Identities.CreateIdentity(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register identity")
		return
	}
	writeJSON(w, http.StatusCreated, identityResponse{ID: id, Name: req.Name})
}

// getRelationships handles GET /api/v1/admin/identities/{name}/relationships.
func (h *Handler) getRelationships(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue(pathParamName)
	ctx := r.Context()
	store := h.deps.Relations

	id, err := store.FindIDByName(ctx, name)
	if errors.Is(err, relation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "identity not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve identity")
		return
	}

	resp := relationshipsResponse{Name: name}
	if resp.Friends, err = store.ListFriends(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list friends")
		return
	}
	if resp.Foes, err = store.ListFoes(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list foes")
		return
	}
	if resp.FriendRequests, err = store.ListPendingRequestsFor(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list friend requests")
		return
	}

	if h.deps.Presence != nil {
		resp.Room = int64(h.deps.Presence.RoomOf(name))
	}

	for _, list := range []*[]string{&resp.Friends, &resp.Foes, &resp.FriendRequests} {
		if *list == nil {
			*list = []string{}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
