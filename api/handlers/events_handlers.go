package handlers

import (
	"net/http"

	"fiberops/core/store"
)

// EventsHandler exposes the read-only audit surfaces: raw webhook deliveries
// and the audit log.
type EventsHandler struct {
	events store.WebhookEventsStore
	audits store.AuditStore
}

func NewEventsHandler(events store.WebhookEventsStore, audits store.AuditStore) *EventsHandler {
	return &EventsHandler{events: events, audits: audits}
}

func (h *EventsHandler) ListWebhookEvents(w http.ResponseWriter, r *http.Request) {
	items, err := h.events.ListEvents(r.Context(), r.URL.Query().Get("source"), queryIntDefault(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *EventsHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	items, err := h.audits.List(r.Context(), queryIntDefault(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot list audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
