package admin

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/txn2/presence/pkg/audit"
)

const (
	pathParamID       = "id"
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

// auditEventResponse wraps a paginated list of audit events.
type auditEventResponse struct {
	Data    []audit.Event `json:"data"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// auditStatsResponse holds aggregate audit statistics.
type auditStatsResponse struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Failures int `json:"failures"`
}

// parseAuditFilter reads the filter criteria shared by the audit endpoints.
func parseAuditFilter(q url.Values) audit.QueryFilter {
	filter := audit.QueryFilter{
		Actor:     q.Get("actor"),
		Target:    q.Get("target"),
		Action:    audit.Action(q.Get("action")),
		StartTime: parseTimeParam(q, "start_time"),
		EndTime:   parseTimeParam(q, "end_time"),
	}
	if v := q.Get("success"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.Success = &b
		}
	}
	return filter
}

// listAuditEvents handles GET /api/v1/admin/audit/events.
func (h *Handler) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := parseAuditFilter(q)

	filter.Limit = parseLimit(q)
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}
	effectiveLimit := filter.Limit
	filter.Offset = parsePageOffset(q, effectiveLimit)

	events, err := h.deps.AuditQuerier.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query audit events")
		return
	}

	total, err := h.deps.AuditQuerier.Count(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count audit events")
		return
	}

	if events == nil {
		events = []audit.Event{}
	}

	writeJSON(w, http.StatusOK, auditEventResponse{
		Data:    events,
		Total:   total,
		Page:    filter.Offset/effectiveLimit + 1,
		PerPage: effectiveLimit,
	})
}

// getAuditEvent handles GET /api/v1/admin/audit/events/{id}.
func (h *Handler) getAuditEvent(w http.ResponseWriter, r *http.Request) {
	filter := audit.QueryFilter{ID: r.PathValue(pathParamID), Limit: 1}
	events, err := h.deps.AuditQuerier.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query audit event")
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "audit event not found")
		return
	}
	writeJSON(w, http.StatusOK, events[0])
}

// getAuditStats handles GET /api/v1/admin/audit/stats.
func (h *Handler) getAuditStats(w http.ResponseWriter, r *http.Request) {
	baseFilter := parseAuditFilter(r.URL.Query())
	baseFilter.Success = nil

	total, err := h.deps.AuditQuerier.Count(r.Context(), baseFilter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count audit events")
		return
	}

	successVal := true
	successFilter := baseFilter
	successFilter.Success = &successVal
	successCount, err := h.deps.AuditQuerier.Count(r.Context(), successFilter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count successful events")
		return
	}

	writeJSON(w, http.StatusOK, auditStatsResponse{
		Total:    total,
		Success:  successCount,
		Failures: total - successCount,
	})
}

// parseTimeParam parses an RFC 3339 query parameter. Invalid values are ignored.
func parseTimeParam(q url.Values, key string) *time.Time {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// parsePageOffset parses the page query parameter and computes offset using the given effective limit.
func parsePageOffset(q url.Values, effectiveLimit int) int {
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return (n - 1) * effectiveLimit
		}
	}
	return 0
}

// parseLimit parses the per_page query parameter into a limit value.
func parseLimit(q url.Values) int {
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
