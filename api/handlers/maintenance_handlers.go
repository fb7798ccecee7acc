package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"fiberops/core/store"
	"fiberops/core/utils"
)

type MaintenanceHandler struct {
	maintenance store.MaintenanceStore
	audits      store.AuditStore
	logger      *utils.Logger
}

func NewMaintenanceHandler(maintenance store.MaintenanceStore, audits store.AuditStore, logger *utils.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{maintenance: maintenance, audits: audits, logger: logger}
}

func (h *MaintenanceHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	items, err := h.maintenance.ListWindows(r.Context(), activeOnly)
	if err != nil {
		h.logger.Errorf("list maintenance windows: %v", err)
		writeError(w, http.StatusInternalServerError, "cannot list windows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createWindowRequest struct {
	Name     string    `json:"name"`
	Scope    string    `json:"scope"`
	DeviceID *int64    `json:"device_id"`
	Ward     string    `json:"ward"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

func (h *MaintenanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWindowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	scope := strings.ToLower(strings.TrimSpace(req.Scope))
	switch scope {
	case "global":
	case "ward":
		if strings.TrimSpace(req.Ward) == "" {
			writeError(w, http.StatusBadRequest, "ward scope needs a ward")
			return
		}
	case "device":
		if req.DeviceID == nil {
			writeError(w, http.StatusBadRequest, "device scope needs a device_id")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "scope must be global, ward or device")
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		writeError(w, http.StatusBadRequest, "ends_at must be after starts_at")
		return
	}
	win := &store.MaintenanceWindow{
		Name:     req.Name,
		Scope:    scope,
		DeviceID: req.DeviceID,
		Ward:     req.Ward,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	}
	if _, err := h.maintenance.CreateWindow(r.Context(), win); err != nil {
		h.logger.Errorf("create maintenance window: %v", err)
		writeError(w, http.StatusInternalServerError, "cannot create window")
		return
	}
	_ = h.audits.Append(r.Context(), "api", "maintenance.create", win.Scope)
	writeJSON(w, http.StatusCreated, win)
}

func (h *MaintenanceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "approve", h.maintenance.ApproveWindow)
}

func (h *MaintenanceHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "stop", h.maintenance.StopWindow)
}

func (h *MaintenanceHandler) update(w http.ResponseWriter, r *http.Request, action string,
	op func(ctx context.Context, id int64, now time.Time) error) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := op(r.Context(), id, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "window cannot be "+action+"d in its current state")
			return
		}
		h.logger.Errorf("maintenance window %d %s: %v", id, action, err)
		writeError(w, http.StatusInternalServerError, "cannot update window")
		return
	}
	win, err := h.maintenance.GetWindow(r.Context(), id)
	if err != nil || win == nil {
		writeError(w, http.StatusInternalServerError, "cannot reload window")
		return
	}
	_ = h.audits.Append(r.Context(), "api", "maintenance."+action, win.Scope)
	writeJSON(w, http.StatusOK, win)
}
