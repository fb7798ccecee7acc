// Package status derives PON lifecycle state from stored evidence. The
// derivation is a pure function of the database: recomputing twice in a row
// always lands on the same status and writes at most once.
package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fiberops/config"
	"fiberops/core/store"
	"fiberops/core/utils"
)

const (
	PolicyEvidence = "evidence"
	PolicyTasks    = "tasks"
)

type Engine struct {
	cfg      config.PonsConfig
	pons     store.PonsStore
	tasks    store.TasksStore
	evidence store.EvidenceStore
	logger   *utils.Logger
}

func NewEngine(cfg config.PonsConfig, pons store.PonsStore, tasks store.TasksStore, evidence store.EvidenceStore, logger *utils.Logger) *Engine {
	return &Engine{cfg: cfg, pons: pons, tasks: tasks, evidence: evidence, logger: logger}
}

// snapshot is everything the derivation reads, loaded up front so the rule
// functions stay pure.
type snapshot struct {
	pon        *store.Pon
	tasks      []store.TaskBrief
	cac        store.CACSummary
	meters     float64
	photoKinds map[string]bool
}

func (e *Engine) load(ctx context.Context, ponID int64) (*snapshot, error) {
	pon, err := e.pons.GetPon(ctx, ponID)
	if err != nil {
		return nil, err
	}
	if pon == nil {
		return nil, store.ErrNotFound
	}
	tasks, err := e.tasks.TasksByPon(ctx, ponID)
	if err != nil {
		return nil, err
	}
	cac, err := e.evidence.CountCACChecks(ctx, ponID)
	if err != nil {
		return nil, err
	}
	meters, err := e.evidence.SumStringingMeters(ctx, ponID)
	if err != nil {
		return nil, err
	}
	kinds, err := e.evidence.ValidPhotoKinds(ctx, ponID)
	if err != nil {
		return nil, err
	}
	return &snapshot{pon: pon, tasks: tasks, cac: cac, meters: meters, photoKinds: kinds}, nil
}

// RecomputeStatus re-derives the PON's status and persists it only when it
// changed. Safe to call any number of times; returns the fresh row and
// whether this call changed anything.
func (e *Engine) RecomputeStatus(ctx context.Context, ponID int64, now time.Time) (*store.Pon, bool, error) {
	snap, err := e.load(ctx, ponID)
	if err != nil {
		return nil, false, err
	}
	derived := e.derive(snap)
	changed, err := e.pons.SetPonStatus(ctx, ponID, derived, now)
	if err != nil {
		return nil, false, err
	}
	if changed {
		e.logger.Printf("pon %d status: %s -> %s", ponID, snap.pon.Status, derived)
		snap.pon.Status = derived
		snap.pon.UpdatedAt = now.UTC()
	}
	return snap.pon, changed, nil
}

func (e *Engine) derive(snap *snapshot) store.PonStatus {
	if e.completed(snap) {
		return store.PonCompleted
	}
	if hasActivity(snap) {
		return store.PonInProgress
	}
	return store.PonNotStarted
}

func (e *Engine) completed(snap *snapshot) bool {
	switch strings.ToLower(e.cfg.CompletionPolicy) {
	case PolicyTasks:
		return tasksComplete(snap)
	default:
		return e.evidenceComplete(snap)
	}
}

// evidenceComplete is the canonical rule: every planned pole planted, every
// CAC check passed, enough stringing recorded and all required photo kinds
// present with valid EXIF and geofence.
func (e *Engine) evidenceComplete(snap *snapshot) bool {
	p := snap.pon
	if p.PolesPlanned <= 0 || p.PolesPlanted != p.PolesPlanned {
		return false
	}
	if snap.cac.Total < 1 || snap.cac.Passed != snap.cac.Total {
		return false
	}
	if snap.meters <= 0 || snap.meters < e.cfg.MinStringingMeters {
		return false
	}
	for _, kind := range e.cfg.RequiredPhotoKinds {
		kind = strings.ToLower(strings.TrimSpace(kind))
		if kind == "" {
			continue
		}
		if !snap.photoKinds[kind] {
			return false
		}
	}
	return true
}

// tasksComplete is the alternate rule: the PON has a task for every step and
// all of them are done.
func tasksComplete(snap *snapshot) bool {
	if len(snap.tasks) == 0 {
		return false
	}
	seen := make(map[store.TaskStep]bool)
	for _, t := range snap.tasks {
		if t.Status != store.TaskDone {
			return false
		}
		seen[t.Step] = true
	}
	for _, step := range []store.TaskStep{store.StepPermissions, store.StepPolePlanting, store.StepCAC, store.StepStringing, store.StepInvoicing} {
		if !seen[step] {
			return false
		}
	}
	return true
}

// hasActivity reports whether any task has left pending. Evidence rows and
// pole counts alone never move a PON out of not_started; work is tracked
// through its tasks.
func hasActivity(snap *snapshot) bool {
	for _, t := range snap.tasks {
		if t.Status != store.TaskPending {
			return true
		}
	}
	return false
}

// TransitionError carries the reason a task move was refused.
type TransitionError struct {
	Reason string
}

func (e *TransitionError) Error() string { return e.Reason }

// ValidateTaskTransition enforces the step's evidence preconditions before a
// task may be marked done. Moving into in_progress never requires evidence.
func (e *Engine) ValidateTaskTransition(ctx context.Context, t *store.Task, next store.TaskStatus) error {
	switch next {
	case store.TaskInProgress:
		if t.Status == store.TaskDone {
			return &TransitionError{Reason: "task already done"}
		}
		return nil
	case store.TaskDone:
		if t.Status == store.TaskDone {
			return &TransitionError{Reason: "task already done"}
		}
		return e.checkStepEvidence(ctx, t)
	case store.TaskPending:
		return &TransitionError{Reason: "cannot move a task back to pending"}
	default:
		return &TransitionError{Reason: fmt.Sprintf("unknown status %q", next)}
	}
}

func (e *Engine) checkStepEvidence(ctx context.Context, t *store.Task) error {
	switch t.Step {
	case store.StepPolePlanting:
		pon, err := e.pons.GetPon(ctx, t.PonID)
		if err != nil {
			return err
		}
		if pon == nil {
			return store.ErrNotFound
		}
		if pon.PolesPlanned <= 0 || pon.PolesPlanted != pon.PolesPlanned {
			return &TransitionError{Reason: fmt.Sprintf("pole planting incomplete: %d of %d planted", pon.PolesPlanted, pon.PolesPlanned)}
		}
	case store.StepCAC:
		sum, err := e.evidence.CountCACChecks(ctx, t.PonID)
		if err != nil {
			return err
		}
		if sum.Total < 1 || sum.Passed != sum.Total {
			return &TransitionError{Reason: fmt.Sprintf("cac incomplete: %d of %d checks passed", sum.Passed, sum.Total)}
		}
	case store.StepStringing:
		meters, err := e.evidence.SumStringingMeters(ctx, t.PonID)
		if err != nil {
			return err
		}
		if meters <= 0 || meters < e.cfg.MinStringingMeters {
			return &TransitionError{Reason: fmt.Sprintf("stringing incomplete: %.1f m recorded", meters)}
		}
	}
	return nil
}
