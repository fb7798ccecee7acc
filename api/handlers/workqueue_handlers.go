package handlers

import (
	"net/http"
	"sync"
	"time"

	"fiberops/core/store"
)

// WorkQueueHandler serves each organization's open work: unfinished tasks
// and active incidents, due-first. Responses are cached briefly per org;
// dispatch boards poll this endpoint aggressively.
type WorkQueueHandler struct {
	tasks     store.TasksStore
	incidents store.IncidentsStore
	ttl       time.Duration

	mu    sync.Mutex
	cache map[int64]workQueueEntry
}

type workQueueEntry struct {
	payload  map[string]any
	cachedAt time.Time
}

func NewWorkQueueHandler(tasks store.TasksStore, incidents store.IncidentsStore, ttl time.Duration) *WorkQueueHandler {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &WorkQueueHandler{tasks: tasks, incidents: incidents, ttl: ttl, cache: make(map[int64]workQueueEntry)}
}

func (h *WorkQueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	now := time.Now()

	h.mu.Lock()
	if entry, ok := h.cache[orgID]; ok && now.Sub(entry.cachedAt) < h.ttl {
		h.mu.Unlock()
		writeJSON(w, http.StatusOK, entry.payload)
		return
	}
	h.mu.Unlock()

	tasks, err := h.tasks.ListOpenTasksByOrg(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot load tasks")
		return
	}
	openStatus := string(store.IncidentOpen)
	incidents, err := h.incidents.ListIncidents(r.Context(), store.IncidentFilter{Status: openStatus, OrgID: &orgID, Limit: 200})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot load incidents")
		return
	}
	acked, err := h.incidents.ListIncidents(r.Context(), store.IncidentFilter{Status: string(store.IncidentAcknowledged), OrgID: &orgID, Limit: 200})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot load incidents")
		return
	}
	incidents = append(incidents, acked...)

	payload := map[string]any{
		"org_id":    orgID,
		"tasks":     tasks,
		"incidents": incidents,
		"as_of":     now.UTC(),
	}
	h.mu.Lock()
	h.cache[orgID] = workQueueEntry{payload: payload, cachedAt: now}
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, payload)
}
