package tests

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fiberops/core/alerts"
	"fiberops/core/store"
)

func signedRequest(t *testing.T, secret, source string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/"+source, bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.10:51000"
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	req.Header.Set("X-Fiberops-Signature", hex.EncodeToString(mac.Sum(nil)))
	return req
}

func problemPayload(host, category, severity string) []byte {
	return []byte(fmt.Sprintf(`{"hostname":%q,"port":"pon7","category":%q,"severity":%q,"status":"problem","message":"alarm"}`,
		host, category, severity))
}

func clearPayload(host, category string) []byte {
	return []byte(fmt.Sprintf(`{"hostname":%q,"port":"pon7","category":%q,"status":"clear"}`, host, category))
}

func TestWebhookDedupKeepsOneActiveIncident(t *testing.T) {
	e := setupEnv(t)
	now := time.Now().UTC()
	body := problemPayload("olt-1", "los", "critical")

	wantOutcomes := []alerts.Outcome{alerts.OutcomeCreated, alerts.OutcomeDedup, alerts.OutcomeDedup}
	var last *store.Incident
	for i, want := range wantOutcomes {
		res, err := e.alerts.HandleDelivery(e.ctx, "zabbix", signedRequest(t, "test-secret", "zabbix", body), body, now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if res.Outcome != want {
			t.Fatalf("delivery %d outcome = %s, want %s", i, res.Outcome, want)
		}
		last = res.Incident
	}
	if last.RepeatCount != 2 {
		t.Fatalf("repeat_count = %d, want 2", last.RepeatCount)
	}

	open, err := e.incidents.ListIncidents(e.ctx, store.IncidentFilter{Status: "open", DedupKey: "olt-1|pon7|los"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("%d open incidents, want exactly 1", len(open))
	}
	if open[0].Severity != store.SeverityP1 {
		t.Fatalf("severity = %s, want P1 for critical", open[0].Severity)
	}

	// Each duplicate delivery leaves a note on the surviving incident.
	timeline, err := e.incidents.ListTimeline(e.ctx, last.ID, 20)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	repeats := 0
	for _, ev := range timeline {
		if ev.EventType == "repeated" {
			repeats++
		}
	}
	if repeats != 2 {
		t.Fatalf("%d repeat notes, want one per duplicate delivery", repeats)
	}
}

func TestWebhookClearResolvesWithTTR(t *testing.T) {
	e := setupEnv(t)
	opened := time.Now().UTC().Add(-30 * time.Minute)
	body := problemPayload("olt-2", "los", "major")
	res, err := e.alerts.HandleDelivery(e.ctx, "zabbix", signedRequest(t, "test-secret", "zabbix", body), body, opened)
	if err != nil || res.Outcome != alerts.OutcomeCreated {
		t.Fatalf("create: outcome=%s err=%v", res.Outcome, err)
	}

	clear := clearPayload("olt-2", "los")
	res, err = e.alerts.HandleDelivery(e.ctx, "zabbix", signedRequest(t, "test-secret", "zabbix", clear), clear, opened.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if res.Outcome != alerts.OutcomeResolved {
		t.Fatalf("outcome = %s, want resolved", res.Outcome)
	}
	if res.Incident.Status != store.IncidentResolved {
		t.Fatalf("status = %s", res.Incident.Status)
	}
	if res.Incident.TTRSeconds == nil || *res.Incident.TTRSeconds < 1700 || *res.Incident.TTRSeconds > 1900 {
		t.Fatalf("ttr_seconds = %v, want ~1800", res.Incident.TTRSeconds)
	}

	// A duplicate clear is harmless.
	res, err = e.alerts.HandleDelivery(e.ctx, "zabbix", signedRequest(t, "test-secret", "zabbix", clear), clear, opened.Add(31*time.Minute))
	if err != nil || res.Outcome != alerts.OutcomeIgnored {
		t.Fatalf("duplicate clear: outcome=%s err=%v", res.Outcome, err)
	}
}

func TestWebhookMaintenanceSuppression(t *testing.T) {
	e := setupEnv(t)
	now := time.Now().UTC()

	device := &store.Device{Hostname: "olt-3", Ward: "ward-7"}
	if _, err := e.contracts.CreateDevice(e.ctx, device); err != nil {
		t.Fatalf("device: %v", err)
	}
	win := &store.MaintenanceWindow{
		Name:     "ward upgrade",
		Scope:    "ward",
		Ward:     "ward-7",
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(time.Hour),
	}
	if _, err := e.maintenance.CreateWindow(e.ctx, win); err != nil {
		t.Fatalf("window: %v", err)
	}
	if err := e.maintenance.ApproveWindow(e.ctx, win.ID, now); err != nil {
		t.Fatalf("approve: %v", err)
	}

	body := problemPayload("olt-3", "los", "critical")
	res, err := e.alerts.HandleDelivery(e.ctx, "zabbix", signedRequest(t, "test-secret", "zabbix", body), body, now)
	if err != nil {
		t.Fatalf("delivery: %v", err)
	}
	if res.Outcome != alerts.OutcomeSuppressed {
		t.Fatalf("outcome = %s, want suppressed", res.Outcome)
	}
	open, _ := e.incidents.ListIncidents(e.ctx, store.IncidentFilter{Status: "open"})
	if len(open) != 0 {
		t.Fatalf("%d incidents created during maintenance", len(open))
	}

	// After the window is stopped the same alert opens an incident.
	if err := e.maintenance.StopWindow(e.ctx, win.ID, now); err != nil {
		t.Fatalf("stop: %v", err)
	}
	res, err = e.alerts.HandleDelivery(e.ctx, "zabbix", signedRequest(t, "test-secret", "zabbix", body), body, now.Add(time.Minute))
	if err != nil || res.Outcome != alerts.OutcomeCreated {
		t.Fatalf("post-window: outcome=%s err=%v", res.Outcome, err)
	}
}

func TestWebhookBadSignatureStillRecorded(t *testing.T) {
	e := setupEnv(t)
	body := problemPayload("olt-4", "los", "critical")
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/zabbix", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.10:51000"
	req.Header.Set("X-Fiberops-Signature", "deadbeef")

	res, err := e.alerts.HandleDelivery(e.ctx, "zabbix", req, body, time.Now().UTC())
	if err != nil {
		t.Fatalf("delivery: %v", err)
	}
	if res.Outcome != alerts.OutcomeUnauthorized {
		t.Fatalf("outcome = %s, want unauthorized", res.Outcome)
	}
	events, err := e.events.ListEvents(e.ctx, "zabbix", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("%d events recorded, want 1", len(events))
	}
	if events[0].HMACValid {
		t.Fatalf("event recorded as hmac_valid")
	}
	open, _ := e.incidents.ListIncidents(e.ctx, store.IncidentFilter{Status: "open"})
	if len(open) != 0 {
		t.Fatalf("rejected delivery created %d incidents", len(open))
	}
}

func TestWebhookRoutingAssignsOrgAndSLA(t *testing.T) {
	e := setupEnv(t)
	now := time.Now().UTC()

	org := &store.Organization{Name: "Contractor C"}
	if _, err := e.contracts.CreateOrganization(e.ctx, org); err != nil {
		t.Fatalf("org: %v", err)
	}
	contract := &store.Contract{OrgID: org.ID, Scope: "ward-7", Active: true, SLAP1Minutes: 90, SLAP2Minutes: 180, SLAP3Minutes: 900, SLAP4Minutes: 1800}
	if _, err := e.contracts.CreateContract(e.ctx, contract); err != nil {
		t.Fatalf("contract: %v", err)
	}
	if _, err := e.contracts.CreateAssignment(e.ctx, &store.Assignment{OrgID: org.ID, Scope: "ward", Ward: "ward-7"}); err != nil {
		t.Fatalf("assignment: %v", err)
	}
	if _, err := e.contracts.CreateDevice(e.ctx, &store.Device{Hostname: "olt-5", Ward: "ward-7"}); err != nil {
		t.Fatalf("device: %v", err)
	}

	body := problemPayload("olt-5", "los", "critical")
	res, err := e.alerts.HandleDelivery(e.ctx, "zabbix", signedRequest(t, "test-secret", "zabbix", body), body, now)
	if err != nil || res.Outcome != alerts.OutcomeCreated {
		t.Fatalf("delivery: outcome=%s err=%v", res.Outcome, err)
	}
	inc := res.Incident
	if inc.AssignedOrgID == nil || *inc.AssignedOrgID != org.ID {
		t.Fatalf("assigned_org_id = %v, want %d", inc.AssignedOrgID, org.ID)
	}
	if inc.SLAMinutes == nil || *inc.SLAMinutes != 90 {
		t.Fatalf("sla_minutes = %v, want contract P1 90", inc.SLAMinutes)
	}
	wantDue := now.Add(90 * time.Minute)
	if inc.DueAt == nil || inc.DueAt.UTC().Sub(wantDue) > time.Second || wantDue.Sub(inc.DueAt.UTC()) > time.Second {
		t.Fatalf("due_at = %v, want %v", inc.DueAt, wantDue)
	}
}
