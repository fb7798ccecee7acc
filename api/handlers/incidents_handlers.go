package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fiberops/core/store"
	"fiberops/core/utils"
)

type IncidentsHandler struct {
	incidents store.IncidentsStore
	audits    store.AuditStore
	logger    *utils.Logger
}

func NewIncidentsHandler(incidents store.IncidentsStore, audits store.AuditStore, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{incidents: incidents, audits: audits, logger: logger}
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.IncidentFilter{
		Status:   r.URL.Query().Get("status"),
		Severity: r.URL.Query().Get("severity"),
		DedupKey: r.URL.Query().Get("dedup_key"),
		OrgID:    queryInt64(r, "org_id"),
		PonID:    queryInt64(r, "pon_id"),
		Limit:    queryIntDefault(r, "limit", 100),
		Offset:   queryIntDefault(r, "offset", 0),
	}
	items, err := h.incidents.ListIncidents(r.Context(), filter)
	if err != nil {
		h.logger.Errorf("list incidents: %v", err)
		writeError(w, http.StatusInternalServerError, "cannot list incidents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	inc, err := h.incidents.GetIncident(r.Context(), id)
	if err != nil {
		h.logger.Errorf("get incident %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot load incident")
		return
	}
	if inc == nil {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	timeline, err := h.incidents.ListTimeline(r.Context(), id, 100)
	if err != nil {
		h.logger.Errorf("incident %d timeline: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot load timeline")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc, "timeline": timeline})
}

func (h *IncidentsHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "acknowledged", h.incidents.AcknowledgeIncident)
}

func (h *IncidentsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "resolved", h.incidents.ResolveIncident)
}

func (h *IncidentsHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "closed", h.incidents.CloseIncident)
}

func (h *IncidentsHandler) lifecycle(w http.ResponseWriter, r *http.Request, action string,
	op func(ctx context.Context, id int64, now time.Time) (*store.Incident, error)) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	inc, err := op(r.Context(), id, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "invalid state for "+action)
			return
		}
		h.logger.Errorf("incident %d %s: %v", id, action, err)
		writeError(w, http.StatusInternalServerError, "cannot update incident")
		return
	}
	if inc == nil {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	if _, err := h.incidents.AddTimeline(r.Context(), &store.IncidentTimelineEvent{
		IncidentID: id,
		EventType:  action,
		Message:    "via api",
	}); err != nil {
		h.logger.Errorf("incident %d timeline %s: %v", id, action, err)
	}
	_ = h.audits.Append(r.Context(), "api", "incident."+action, inc.DedupKey)
	writeJSON(w, http.StatusOK, inc)
}
