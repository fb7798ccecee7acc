package tests

import (
	"testing"
	"time"

	"fiberops/core/store"
)

func TestTaskTimerDueExactness(t *testing.T) {
	e := setupEnv(t)
	pon := e.createPon(t, "pon-sla", 5)
	task := e.createTask(t, pon.ID, store.StepCAC)

	startedAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	started, err := e.clock.StartTaskTimer(e.ctx, task, startedAt)
	if err != nil {
		t.Fatalf("start timer: %v", err)
	}
	if !started {
		t.Fatalf("first start must stamp the window")
	}
	got, err := e.tasks.GetTask(e.ctx, task.ID)
	if err != nil || got == nil {
		t.Fatalf("reload: %v", err)
	}
	if got.SLAMinutes == nil || *got.SLAMinutes != 1440 {
		t.Fatalf("sla_minutes = %v, want cac default 1440", got.SLAMinutes)
	}
	wantDue := startedAt.Add(1440 * time.Minute)
	if got.SLADueAt == nil || !got.SLADueAt.UTC().Equal(wantDue) {
		t.Fatalf("due = %v, want %v", got.SLADueAt, wantDue)
	}
}

func TestTaskTimerStartIsIdempotent(t *testing.T) {
	e := setupEnv(t)
	pon := e.createPon(t, "pon-sla2", 5)
	task := e.createTask(t, pon.ID, store.StepStringing)

	first := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if _, err := e.clock.StartTaskTimer(e.ctx, task, first); err != nil {
		t.Fatalf("start: %v", err)
	}
	started, err := e.clock.StartTaskTimer(e.ctx, task, first.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if started {
		t.Fatalf("second start must not move the window")
	}
	got, _ := e.tasks.GetTask(e.ctx, task.ID)
	if got.SLAStartedAt == nil || !got.SLAStartedAt.UTC().Equal(first) {
		t.Fatalf("started_at moved to %v", got.SLAStartedAt)
	}
}

func TestTaskMinutesResolutionOrder(t *testing.T) {
	e := setupEnv(t)
	override := 99
	task := &store.Task{Step: store.StepPermissions, SLAMinutes: &override}
	if got := e.clock.ResolveTaskMinutes(task); got != 99 {
		t.Fatalf("task override: got %d", got)
	}

	e.cfg.SLA.PermissionsMinutes = 777
	clock := clockWithConfig(e)
	if got := clock.ResolveTaskMinutes(&store.Task{Step: store.StepPermissions}); got != 777 {
		t.Fatalf("config override: got %d", got)
	}

	e.cfg.SLA.PermissionsMinutes = 0
	clock = clockWithConfig(e)
	if got := clock.ResolveTaskMinutes(&store.Task{Step: store.StepPermissions}); got != 4320 {
		t.Fatalf("built-in default: got %d", got)
	}
}

func TestIncidentMinutesFromContract(t *testing.T) {
	e := setupEnv(t)
	org := &store.Organization{Name: "Contractor A"}
	if _, err := e.contracts.CreateOrganization(e.ctx, org); err != nil {
		t.Fatalf("org: %v", err)
	}
	contract := &store.Contract{
		OrgID: org.ID, Scope: "ward-7", Active: true,
		SLAP1Minutes: 60, SLAP2Minutes: 120, SLAP3Minutes: 600, SLAP4Minutes: 2000,
	}
	if _, err := e.contracts.CreateContract(e.ctx, contract); err != nil {
		t.Fatalf("contract: %v", err)
	}

	got, err := e.clock.ResolveIncidentMinutes(e.ctx, &org.ID, store.SeverityP1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != 60 {
		t.Fatalf("contract P1: got %d", got)
	}

	// No org at all falls back to the config defaults.
	got, err = e.clock.ResolveIncidentMinutes(e.ctx, nil, store.SeverityP2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != 240 {
		t.Fatalf("default P2: got %d", got)
	}
}
