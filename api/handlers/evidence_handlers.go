package handlers

import (
	"net/http"
	"strings"
	"time"

	"fiberops/config"
	"fiberops/core/geo"
	"fiberops/core/status"
	"fiberops/core/store"
	"fiberops/core/utils"
)

type EvidenceHandler struct {
	cfg      config.EvidenceConfig
	pons     store.PonsStore
	evidence store.EvidenceStore
	engine   *status.Engine
	logger   *utils.Logger
}

func NewEvidenceHandler(cfg config.EvidenceConfig, pons store.PonsStore, evidence store.EvidenceStore, engine *status.Engine, logger *utils.Logger) *EvidenceHandler {
	return &EvidenceHandler{cfg: cfg, pons: pons, evidence: evidence, engine: engine, logger: logger}
}

func (h *EvidenceHandler) loadPon(w http.ResponseWriter, r *http.Request) *store.Pon {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	pon, err := h.pons.GetPon(r.Context(), id)
	if err != nil {
		h.logger.Errorf("get pon %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot load pon")
		return nil
	}
	if pon == nil {
		writeError(w, http.StatusNotFound, "pon not found")
		return nil
	}
	return pon
}

type addCACRequest struct {
	PoleRef    string     `json:"pole_ref"`
	Passed     bool       `json:"passed"`
	MeasuredAt *time.Time `json:"measured_at"`
}

func (h *EvidenceHandler) AddCACCheck(w http.ResponseWriter, r *http.Request) {
	pon := h.loadPon(w, r)
	if pon == nil {
		return
	}
	var req addCACRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	measured := time.Now().UTC()
	if req.MeasuredAt != nil {
		measured = req.MeasuredAt.UTC()
	}
	check := &store.CACCheck{PonID: pon.ID, PoleRef: req.PoleRef, Passed: req.Passed, MeasuredAt: measured}
	if _, err := h.evidence.AddCACCheck(r.Context(), check); err != nil {
		h.logger.Errorf("add cac check pon %d: %v", pon.ID, err)
		writeError(w, http.StatusInternalServerError, "cannot record check")
		return
	}
	if err := h.recompute(r, pon.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "check recorded but status recompute failed")
		return
	}
	writeJSON(w, http.StatusCreated, check)
}

type addStringingRequest struct {
	Meters     float64    `json:"meters"`
	RecordedAt *time.Time `json:"recorded_at"`
}

func (h *EvidenceHandler) AddStringingRun(w http.ResponseWriter, r *http.Request) {
	pon := h.loadPon(w, r)
	if pon == nil {
		return
	}
	var req addStringingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Meters <= 0 {
		writeError(w, http.StatusBadRequest, "meters must be positive")
		return
	}
	recorded := time.Now().UTC()
	if req.RecordedAt != nil {
		recorded = req.RecordedAt.UTC()
	}
	run := &store.StringingRun{PonID: pon.ID, Meters: req.Meters, RecordedAt: recorded}
	if _, err := h.evidence.AddStringingRun(r.Context(), run); err != nil {
		h.logger.Errorf("add stringing run pon %d: %v", pon.ID, err)
		writeError(w, http.StatusInternalServerError, "cannot record run")
		return
	}
	if err := h.recompute(r, pon.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "run recorded but status recompute failed")
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

type addPhotoRequest struct {
	Kind    string     `json:"kind"`
	TakenAt *time.Time `json:"taken_at"`
	Lat     *float64   `json:"lat"`
	Lng     *float64   `json:"lng"`
}

// AddPhoto records a photo and validates it at ingest: EXIF recency against
// the upload instant, coordinates against the PON's geofence. Validation
// failures do not reject the upload, they just mark the photo unusable as
// completion evidence.
func (h *EvidenceHandler) AddPhoto(w http.ResponseWriter, r *http.Request) {
	pon := h.loadPon(w, r)
	if pon == nil {
		return
	}
	var req addPhotoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}
	now := time.Now().UTC()
	maxAge := time.Duration(h.cfg.PhotoRecencyHours) * time.Hour
	fence := geo.BuildFence(pon.PolygonJSON, pon.CenterLat, pon.CenterLng, pon.RadiusM)
	photo := &store.PonPhoto{
		PonID:     pon.ID,
		Kind:      kind,
		TakenAt:   req.TakenAt,
		Lat:       req.Lat,
		Lng:       req.Lng,
		EXIFValid: geo.RecencyValid(req.TakenAt, now, maxAge),
		GeoValid:  req.Lat != nil && req.Lng != nil && fence.Contains(geo.Point{Lat: *req.Lat, Lng: *req.Lng}),
	}
	if _, err := h.evidence.AddPhoto(r.Context(), photo); err != nil {
		h.logger.Errorf("add photo pon %d: %v", pon.ID, err)
		writeError(w, http.StatusInternalServerError, "cannot record photo")
		return
	}
	if err := h.recompute(r, pon.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "photo recorded but status recompute failed")
		return
	}
	writeJSON(w, http.StatusCreated, photo)
}

func (h *EvidenceHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	pon := h.loadPon(w, r)
	if pon == nil {
		return
	}
	photos, err := h.evidence.ListPhotos(r.Context(), pon.ID)
	if err != nil {
		h.logger.Errorf("list photos pon %d: %v", pon.ID, err)
		writeError(w, http.StatusInternalServerError, "cannot list photos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": photos})
}

// recompute re-derives the PON status after an evidence write. The error is
// returned so the caller learns the mutation did not fully take effect.
func (h *EvidenceHandler) recompute(r *http.Request, ponID int64) error {
	if _, _, err := h.engine.RecomputeStatus(r.Context(), ponID, time.Now().UTC()); err != nil {
		h.logger.Errorf("recompute pon %d after evidence: %v", ponID, err)
		return err
	}
	return nil
}
