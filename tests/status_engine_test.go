package tests

import (
	"errors"
	"testing"
	"time"

	"fiberops/core/status"
	"fiberops/core/store"
)

func TestRecomputeStatusLifecycle(t *testing.T) {
	e := setupEnv(t)
	pon := e.createPon(t, "pon-a", 10)
	now := time.Now().UTC()

	got, changed, err := e.engine.RecomputeStatus(e.ctx, pon.ID, now)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if changed {
		t.Fatalf("fresh pon should already be not_started")
	}
	if got.Status != store.PonNotStarted {
		t.Fatalf("status = %s, want not_started", got.Status)
	}

	if err := e.pons.UpdatePonProgress(e.ctx, pon.ID, 3); err != nil {
		t.Fatalf("progress: %v", err)
	}
	got, changed, err = e.engine.RecomputeStatus(e.ctx, pon.ID, now)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if changed || got.Status != store.PonNotStarted {
		t.Fatalf("changed=%v status=%s, poles alone must not start the pon", changed, got.Status)
	}

	task := e.createTask(t, pon.ID, store.StepPolePlanting)
	if err := e.tasks.SetTaskStatus(e.ctx, task.ID, store.TaskInProgress, now); err != nil {
		t.Fatalf("set in_progress: %v", err)
	}
	got, changed, err = e.engine.RecomputeStatus(e.ctx, pon.ID, now)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !changed || got.Status != store.PonInProgress {
		t.Fatalf("changed=%v status=%s, want change to in_progress", changed, got.Status)
	}

	e.addCompleteEvidence(t, pon)
	got, changed, err = e.engine.RecomputeStatus(e.ctx, pon.ID, now)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !changed || got.Status != store.PonCompleted {
		t.Fatalf("changed=%v status=%s, want change to completed", changed, got.Status)
	}
}

func TestRecomputeStatusIdempotent(t *testing.T) {
	e := setupEnv(t)
	pon := e.createPon(t, "pon-b", 4)
	e.addCompleteEvidence(t, pon)
	now := time.Now().UTC()

	first, changed, err := e.engine.RecomputeStatus(e.ctx, pon.ID, now)
	if err != nil || !changed {
		t.Fatalf("first recompute: changed=%v err=%v", changed, err)
	}
	second, changed, err := e.engine.RecomputeStatus(e.ctx, pon.ID, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if changed {
		t.Fatalf("second recompute must be a no-op")
	}
	if second.Status != first.Status {
		t.Fatalf("status drifted: %s vs %s", second.Status, first.Status)
	}
}

func TestRecomputeStatusMissingPon(t *testing.T) {
	e := setupEnv(t)
	_, _, err := e.engine.RecomputeStatus(e.ctx, 9999, time.Now().UTC())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEvidenceCompletionRejectsPartial(t *testing.T) {
	e := setupEnv(t)
	pon := e.createPon(t, "pon-c", 10)
	now := time.Now().UTC()
	task := e.createTask(t, pon.ID, store.StepCAC)
	if err := e.tasks.SetTaskStatus(e.ctx, task.ID, store.TaskInProgress, now); err != nil {
		t.Fatalf("set in_progress: %v", err)
	}
	e.addCompleteEvidence(t, pon)
	// One failed CAC check blocks completion no matter what else is present.
	if _, err := e.evidence.AddCACCheck(e.ctx, &store.CACCheck{PonID: pon.ID, PoleRef: "p-2", Passed: false, MeasuredAt: now}); err != nil {
		t.Fatalf("cac: %v", err)
	}
	got, _, err := e.engine.RecomputeStatus(e.ctx, pon.ID, now)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got.Status != store.PonInProgress {
		t.Fatalf("status = %s, want in_progress with failed cac present", got.Status)
	}
}

func TestEvidenceWithoutTasksStaysNotStarted(t *testing.T) {
	e := setupEnv(t)
	pon := e.createPon(t, "pon-f", 5)
	now := time.Now().UTC()
	if err := e.pons.UpdatePonProgress(e.ctx, pon.ID, 3); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if _, err := e.evidence.AddCACCheck(e.ctx, &store.CACCheck{PonID: pon.ID, PoleRef: "p-1", Passed: true, MeasuredAt: now}); err != nil {
		t.Fatalf("cac: %v", err)
	}
	got, _, err := e.engine.RecomputeStatus(e.ctx, pon.ID, now)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got.Status != store.PonNotStarted {
		t.Fatalf("status = %s, want not_started with no active task", got.Status)
	}

	// A done task is enough to count as activity.
	task := e.createTask(t, pon.ID, store.StepPermissions)
	if err := e.tasks.SetTaskStatus(e.ctx, task.ID, store.TaskDone, now); err != nil {
		t.Fatalf("set done: %v", err)
	}
	got, _, err = e.engine.RecomputeStatus(e.ctx, pon.ID, now)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got.Status != store.PonInProgress {
		t.Fatalf("status = %s, want in_progress with a done task", got.Status)
	}
}

func TestTasksCompletionPolicy(t *testing.T) {
	e := setupEnv(t)
	e.cfg.Pons.CompletionPolicy = "tasks"
	// The engine reads policy at construction; rebuild it with the override.
	e.engine = statusEngineWithPolicy(e)

	pon := e.createPon(t, "pon-d", 2)
	steps := []store.TaskStep{store.StepPermissions, store.StepPolePlanting, store.StepCAC, store.StepStringing, store.StepInvoicing}
	var tasks []*store.Task
	for _, step := range steps {
		tasks = append(tasks, e.createTask(t, pon.ID, step))
	}
	now := time.Now().UTC()
	for _, task := range tasks[:len(tasks)-1] {
		if err := e.tasks.SetTaskStatus(e.ctx, task.ID, store.TaskDone, now); err != nil {
			t.Fatalf("set done: %v", err)
		}
	}
	got, _, err := e.engine.RecomputeStatus(e.ctx, pon.ID, now)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got.Status != store.PonInProgress {
		t.Fatalf("status = %s, want in_progress with one open task", got.Status)
	}
	if err := e.tasks.SetTaskStatus(e.ctx, tasks[len(tasks)-1].ID, store.TaskDone, now); err != nil {
		t.Fatalf("set done: %v", err)
	}
	got, _, err = e.engine.RecomputeStatus(e.ctx, pon.ID, now)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got.Status != store.PonCompleted {
		t.Fatalf("status = %s, want completed under tasks policy", got.Status)
	}
}

func statusEngineWithPolicy(e *env) *status.Engine {
	return status.NewEngine(e.cfg.Pons, e.pons, e.tasks, e.evidence, nil)
}

func TestTaskTransitionEvidencePrecondition(t *testing.T) {
	e := setupEnv(t)
	pon := e.createPon(t, "pon-e", 5)
	task := e.createTask(t, pon.ID, store.StepPolePlanting)

	err := e.engine.ValidateTaskTransition(e.ctx, task, store.TaskDone)
	var terr *status.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransitionError before poles planted", err)
	}

	if err := e.pons.UpdatePonProgress(e.ctx, pon.ID, 5); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if err := e.engine.ValidateTaskTransition(e.ctx, task, store.TaskDone); err != nil {
		t.Fatalf("transition should pass once poles match plan: %v", err)
	}
}
