package handlers

import (
	"net/http"
	"strings"

	"fiberops/core/store"
	"fiberops/core/utils"
)

// RoutingHandler administers the coverage model: organizations, contracts,
// assignments and the device registry incidents are matched against.
type RoutingHandler struct {
	contracts store.ContractsStore
	audits    store.AuditStore
	logger    *utils.Logger
}

func NewRoutingHandler(contracts store.ContractsStore, audits store.AuditStore, logger *utils.Logger) *RoutingHandler {
	return &RoutingHandler{contracts: contracts, audits: audits, logger: logger}
}

func (h *RoutingHandler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	items, err := h.contracts.ListOrganizations(r.Context())
	if err != nil {
		h.logger.Errorf("list orgs: %v", err)
		writeError(w, http.StatusInternalServerError, "cannot list organizations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *RoutingHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	org := &store.Organization{Name: req.Name}
	if _, err := h.contracts.CreateOrganization(r.Context(), org); err != nil {
		h.logger.Errorf("create org: %v", err)
		writeError(w, http.StatusInternalServerError, "cannot create organization")
		return
	}
	_ = h.audits.Append(r.Context(), "api", "org.create", org.Name)
	writeJSON(w, http.StatusCreated, org)
}

type createContractRequest struct {
	Scope        string `json:"scope"`
	SLAP1Minutes int    `json:"sla_p1_minutes"`
	SLAP2Minutes int    `json:"sla_p2_minutes"`
	SLAP3Minutes int    `json:"sla_p3_minutes"`
	SLAP4Minutes int    `json:"sla_p4_minutes"`
}

func (h *RoutingHandler) CreateContract(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req createContractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SLAP1Minutes < 0 || req.SLAP2Minutes < 0 || req.SLAP3Minutes < 0 || req.SLAP4Minutes < 0 {
		writeError(w, http.StatusBadRequest, "sla minutes cannot be negative")
		return
	}
	c := &store.Contract{
		OrgID:        orgID,
		Scope:        req.Scope,
		Active:       true,
		SLAP1Minutes: req.SLAP1Minutes,
		SLAP2Minutes: req.SLAP2Minutes,
		SLAP3Minutes: req.SLAP3Minutes,
		SLAP4Minutes: req.SLAP4Minutes,
	}
	if _, err := h.contracts.CreateContract(r.Context(), c); err != nil {
		h.logger.Errorf("create contract org %d: %v", orgID, err)
		writeError(w, http.StatusInternalServerError, "cannot create contract")
		return
	}
	_ = h.audits.Append(r.Context(), "api", "contract.create", req.Scope)
	writeJSON(w, http.StatusCreated, c)
}

type createAssignmentRequest struct {
	OrgID int64  `json:"org_id"`
	Scope string `json:"scope"`
	PonID *int64 `json:"pon_id"`
	Ward  string `json:"ward"`
}

func (h *RoutingHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	scope := strings.ToLower(strings.TrimSpace(req.Scope))
	switch scope {
	case "pon":
		if req.PonID == nil {
			writeError(w, http.StatusBadRequest, "pon scope needs a pon_id")
			return
		}
	case "ward":
		if strings.TrimSpace(req.Ward) == "" {
			writeError(w, http.StatusBadRequest, "ward scope needs a ward")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "scope must be pon or ward")
		return
	}
	if req.OrgID <= 0 {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}
	a := &store.Assignment{OrgID: req.OrgID, Scope: scope, PonID: req.PonID, Ward: req.Ward}
	if _, err := h.contracts.CreateAssignment(r.Context(), a); err != nil {
		h.logger.Errorf("create assignment: %v", err)
		writeError(w, http.StatusInternalServerError, "cannot create assignment")
		return
	}
	_ = h.audits.Append(r.Context(), "api", "assignment.create", scope)
	writeJSON(w, http.StatusCreated, a)
}

type createDeviceRequest struct {
	Hostname string `json:"hostname"`
	Ward     string `json:"ward"`
	PonID    *int64 `json:"pon_id"`
}

func (h *RoutingHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Hostname) == "" {
		writeError(w, http.StatusBadRequest, "hostname is required")
		return
	}
	d := &store.Device{Hostname: req.Hostname, Ward: req.Ward, PonID: req.PonID}
	if _, err := h.contracts.CreateDevice(r.Context(), d); err != nil {
		h.logger.Errorf("create device: %v", err)
		writeError(w, http.StatusInternalServerError, "cannot create device")
		return
	}
	_ = h.audits.Append(r.Context(), "api", "device.create", d.Hostname)
	writeJSON(w, http.StatusCreated, d)
}
