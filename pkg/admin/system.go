package admin

import "net/http"

// systemInfoResponse is returned by GET /system/info.
type systemInfoResponse struct {
	Features systemFeatures `json:"features"`
	Stats    any            `json:"stats,omitempty"`
}

// systemFeatures lists server features based on runtime availability.
type systemFeatures struct {
	Audit      bool `json:"audit"`
	Database   bool `json:"database"`
	Identities bool `json:"identities"`
}

// getSystemInfo handles GET /api/v1/admin/system/info.
func (h *Handler) getSystemInfo(w http.ResponseWriter, _ *http.Request) {
	resp := systemInfoResponse{
		Features: systemFeatures{
			Audit:      h.deps.AuditQuerier != nil,
			Database:   h.deps.DatabaseAvailable,
			Identities: h.deps.Identities != nil,
		},
	}
	if h.deps.Stats != nil {
		resp.Stats = h.deps.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
