package handler

import (
	"context"
	"net/http"
)

// OutboxInspector reports the outbox backlog for the admin surface.
type OutboxInspector interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

// RetryInspector exposes the retry queue's quarantined members, keyed by
// raw member with the decode error as value.
type RetryInspector interface {
	Quarantined(ctx context.Context) (map[string]string, error)
}

// AdminHandler serves operator-only endpoints.
type AdminHandler struct {
	outbox  OutboxInspector
	retries RetryInspector
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(outbox OutboxInspector, retries RetryInspector) *AdminHandler {
	return &AdminHandler{outbox: outbox, retries: retries}
}

// OutboxStats returns outbox event counts by status.
func (h *AdminHandler) OutboxStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.outbox.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read outbox stats", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// RetryQuarantine lists retry members that could not be decoded, with the
// error that parked each of them.
func (h *AdminHandler) RetryQuarantine(w http.ResponseWriter, r *http.Request) {
	entries, err := h.retries.Quarantined(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read retry quarantine", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}
