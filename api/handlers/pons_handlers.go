package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"fiberops/core/status"
	"fiberops/core/store"
	"fiberops/core/utils"
)

type PonsHandler struct {
	pons   store.PonsStore
	tasks  store.TasksStore
	engine *status.Engine
	audits store.AuditStore
	logger *utils.Logger
}

func NewPonsHandler(pons store.PonsStore, tasks store.TasksStore, engine *status.Engine, audits store.AuditStore, logger *utils.Logger) *PonsHandler {
	return &PonsHandler{pons: pons, tasks: tasks, engine: engine, audits: audits, logger: logger}
}

type createPonRequest struct {
	Name         string   `json:"name"`
	OrgID        *int64   `json:"org_id"`
	Ward         string   `json:"ward"`
	PolesPlanned int      `json:"poles_planned"`
	CenterLat    *float64 `json:"center_lat"`
	CenterLng    *float64 `json:"center_lng"`
	RadiusM      *float64 `json:"radius_m"`
	PolygonJSON  string   `json:"polygon_json"`
}

func (h *PonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.PolesPlanned < 0 {
		writeError(w, http.StatusBadRequest, "poles_planned cannot be negative")
		return
	}
	p := &store.Pon{
		Name:         req.Name,
		OrgID:        req.OrgID,
		Ward:         req.Ward,
		PolesPlanned: req.PolesPlanned,
		CenterLat:    req.CenterLat,
		CenterLng:    req.CenterLng,
		RadiusM:      req.RadiusM,
		PolygonJSON:  req.PolygonJSON,
	}
	if _, err := h.pons.CreatePon(r.Context(), p); err != nil {
		h.logger.Errorf("create pon: %v", err)
		writeError(w, http.StatusInternalServerError, "cannot create pon")
		return
	}
	_ = h.audits.Append(r.Context(), "api", "pon.create", p.Name)
	writeJSON(w, http.StatusCreated, p)
}

func (h *PonsHandler) List(w http.ResponseWriter, r *http.Request) {
	pons, err := h.pons.ListPons(r.Context(), queryInt64(r, "org_id"))
	if err != nil {
		h.logger.Errorf("list pons: %v", err)
		writeError(w, http.StatusInternalServerError, "cannot list pons")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": pons})
}

func (h *PonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	pon, err := h.pons.GetPon(r.Context(), id)
	if err != nil {
		h.logger.Errorf("get pon %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot load pon")
		return
	}
	if pon == nil {
		writeError(w, http.StatusNotFound, "pon not found")
		return
	}
	tasks, err := h.tasks.TasksByPon(r.Context(), id)
	if err != nil {
		h.logger.Errorf("get pon %d tasks: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot load tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pon": pon, "tasks": tasks})
}

type updateProgressRequest struct {
	PolesPlanted int `json:"poles_planted"`
}

func (h *PonsHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PolesPlanted < 0 {
		writeError(w, http.StatusBadRequest, "poles_planted cannot be negative")
		return
	}
	if err := h.pons.UpdatePonProgress(r.Context(), id, req.PolesPlanted); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pon not found")
			return
		}
		h.logger.Errorf("update pon %d progress: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot update progress")
		return
	}
	pon, _, err := h.engine.RecomputeStatus(r.Context(), id, time.Now().UTC())
	if err != nil {
		h.logger.Errorf("recompute pon %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot recompute status")
		return
	}
	writeJSON(w, http.StatusOK, pon)
}

func (h *PonsHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	pon, changed, err := h.engine.RecomputeStatus(r.Context(), id, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pon not found")
			return
		}
		h.logger.Errorf("recompute pon %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot recompute status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pon": pon, "changed": changed})
}
