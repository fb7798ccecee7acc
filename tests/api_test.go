package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fiberops/api"
	"fiberops/core/rbac"
	"fiberops/core/status"
	"fiberops/core/store"
	"fiberops/core/utils"
)

func setupServer(t *testing.T, e *env) http.Handler {
	t.Helper()
	e.cfg.APIToken = "admin-token"
	e.cfg.APITokens = []string{"field-token=contractor", "dispatch-token=dispatcher"}
	policy, err := rbac.NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	srv := api.NewServer(e.cfg, api.ServerDeps{
		Pons:        e.pons,
		Tasks:       e.tasks,
		Incidents:   e.incidents,
		Evidence:    e.evidence,
		Contracts:   e.contracts,
		Maintenance: e.maintenance,
		Events:      e.events,
		Audits:      e.audits,
		Engine:      e.engine,
		Clock:       e.clock,
		Alerts:      e.alerts,
		Scanner:     e.scanner,
		Policy:      policy,
	}, utils.NewLogger())
	return srv.Router()
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPITokenAuth(t *testing.T) {
	e := setupEnv(t)
	h := setupServer(t, e)

	if rec := doJSON(t, h, http.MethodGet, "/api/pons/", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/pons/", "wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", rec.Code)
	}
	// Contractors can view but not create PONs.
	if rec := doJSON(t, h, http.MethodGet, "/api/pons/", "field-token", nil); rec.Code != http.StatusOK {
		t.Fatalf("contractor view: %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/pons/", "field-token", map[string]any{"name": "x"}); rec.Code != http.StatusForbidden {
		t.Fatalf("contractor create: %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/pons/", "admin-token", map[string]any{"name": "pon-api", "poles_planned": 4}); rec.Code != http.StatusCreated {
		t.Fatalf("admin create: %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAPITaskFlow(t *testing.T) {
	e := setupEnv(t)
	h := setupServer(t, e)
	pon := e.createPon(t, "pon-api2", 2)

	rec := doJSON(t, h, http.MethodPost, "/api/pons/1/tasks", "dispatch-token", map[string]any{"step": "pole_planting"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: %d body=%s", rec.Code, rec.Body.String())
	}
	var task struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Finishing pole planting is refused until the poles are in the ground.
	rec = doJSON(t, h, http.MethodPost, "/api/tasks/1/transition", "dispatch-token", map[string]any{"status": "done"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("premature done: %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/tasks/1/transition", "dispatch-token", map[string]any{"status": "in_progress"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: %d body=%s", rec.Code, rec.Body.String())
	}
	got, _ := e.tasks.GetTask(e.ctx, task.ID)
	if got.SLADueAt == nil {
		t.Fatalf("starting a task must start its sla clock")
	}

	if rec := doJSON(t, h, http.MethodPut, "/api/pons/1/progress", "field-token", map[string]any{"poles_planted": 2}); rec.Code != http.StatusOK {
		t.Fatalf("progress: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/tasks/1/transition", "dispatch-token", map[string]any{"status": "done"})
	if rec.Code != http.StatusOK {
		t.Fatalf("done: %d body=%s", rec.Code, rec.Body.String())
	}
	_ = pon
}

func TestAPIWebhookAndEventLog(t *testing.T) {
	e := setupEnv(t)
	h := setupServer(t, e)

	body := problemPayload("olt-9", "los", "critical")
	req := signedRequest(t, "test-secret", "zabbix", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("signed webhook: %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Outcome != "created" {
		t.Fatalf("outcome = %q err=%v", resp.Outcome, err)
	}

	badReq := httptest.NewRequest(http.MethodPost, "/api/webhooks/zabbix", bytes.NewReader(body))
	badReq.Header.Set("X-Fiberops-Signature", "deadbeef")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, badReq)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/webhook-events?source=zabbix", "dispatch-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events: %d", rec.Code)
	}
	var events struct {
		Items []struct {
			HMACValid bool `json:"hmac_valid"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events.Items) != 2 {
		t.Fatalf("%d events, want both deliveries recorded", len(events.Items))
	}
}

func TestAPIWebhookBadPayloadAcknowledged(t *testing.T) {
	e := setupEnv(t)
	h := setupServer(t, e)

	// Signature is valid, the body is garbage. The delivery is recorded, so
	// the sender must not be told to retry.
	body := []byte("definitely not json")
	req := signedRequest(t, "test-secret", "zabbix", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated bad payload: %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Outcome != "bad_payload" {
		t.Fatalf("outcome = %q err=%v", resp.Outcome, err)
	}
	events, err := e.events.ListEvents(e.ctx, "zabbix", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || !events[0].HMACValid {
		t.Fatalf("delivery not recorded as authenticated: %+v", events)
	}
}

// brokenEvidence fails the aggregate reads the status engine depends on while
// leaving the write path intact.
type brokenEvidence struct {
	store.EvidenceStore
}

func (brokenEvidence) CountCACChecks(context.Context, int64) (store.CACSummary, error) {
	return store.CACSummary{}, errors.New("evidence reads unavailable")
}

func TestAPIRecomputeFailureSurfaces(t *testing.T) {
	e := setupEnv(t)
	pon := e.createPon(t, "pon-api3", 2)
	e.engine = status.NewEngine(e.cfg.Pons, e.pons, e.tasks, brokenEvidence{e.evidence}, utils.NewLogger())
	h := setupServer(t, e)

	rec := doJSON(t, h, http.MethodPost, "/api/pons/1/cac", "field-token", map[string]any{"pole_ref": "p-1", "passed": true})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("cac with failing recompute: %d body=%s", rec.Code, rec.Body.String())
	}
	// The check row itself survives; the failure is about the derived status.
	sum, err := e.evidence.CountCACChecks(e.ctx, pon.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if sum.Total != 1 {
		t.Fatalf("%d cac rows, want the write to persist", sum.Total)
	}

	// Finishing a task triggers the same recompute and must surface it too.
	task := e.createTask(t, pon.ID, store.StepPermissions)
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/tasks/%d/transition", task.ID), "dispatch-token", map[string]any{"status": "done"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("done with failing recompute: %d body=%s", rec.Code, rec.Body.String())
	}
}
