// Package sla resolves clock durations and stamps timing windows for tasks
// and incidents. Resolution is layered: the most specific source wins, and
// the built-in defaults are the floor that always answers.
package sla

import (
	"context"
	"time"

	"fiberops/config"
	"fiberops/core/store"
)

// Built-in per-step defaults, in minutes.
var stepDefaults = map[store.TaskStep]int{
	store.StepPermissions:  4320,
	store.StepPolePlanting: 2880,
	store.StepCAC:          1440,
	store.StepStringing:    2880,
	store.StepInvoicing:    1440,
}

// Built-in per-severity defaults, in minutes. Used when no contract covers
// the incident and no config override is set.
func severityDefault(cfg config.SLAConfig, sev store.Severity) int {
	switch sev {
	case store.SeverityP1:
		return cfg.P1Minutes
	case store.SeverityP2:
		return cfg.P2Minutes
	case store.SeverityP3:
		return cfg.P3Minutes
	default:
		return cfg.P4Minutes
	}
}

func stepOverride(cfg config.SLAConfig, step store.TaskStep) int {
	switch step {
	case store.StepPermissions:
		return cfg.PermissionsMinutes
	case store.StepPolePlanting:
		return cfg.PolePlantingMinutes
	case store.StepCAC:
		return cfg.CACMinutes
	case store.StepStringing:
		return cfg.StringingMinutes
	case store.StepInvoicing:
		return cfg.InvoicingMinutes
	default:
		return 0
	}
}

// Clock starts and resolves SLA windows. It never flags breaches itself;
// that belongs to the sweep.
type Clock struct {
	cfg       config.SLAConfig
	tasks     store.TasksStore
	contracts store.ContractsStore
}

func NewClock(cfg config.SLAConfig, tasks store.TasksStore, contracts store.ContractsStore) *Clock {
	return &Clock{cfg: cfg, tasks: tasks, contracts: contracts}
}

// ResolveTaskMinutes picks the duration for a task: a task-level override
// wins, then the config override for the step, then the built-in default.
func (c *Clock) ResolveTaskMinutes(t *store.Task) int {
	if t.SLAMinutes != nil && *t.SLAMinutes > 0 {
		return *t.SLAMinutes
	}
	if m := stepOverride(c.cfg, t.Step); m > 0 {
		return m
	}
	return stepDefaults[t.Step]
}

// StartTaskTimer stamps the window at startedAt if the task has none.
// Returns true when this call started the clock; false means a window was
// already running and nothing changed.
func (c *Clock) StartTaskTimer(ctx context.Context, t *store.Task, startedAt time.Time) (bool, error) {
	minutes := c.ResolveTaskMinutes(t)
	due := startedAt.UTC().Add(time.Duration(minutes) * time.Minute)
	return c.tasks.StartTaskTimer(ctx, t.ID, minutes, startedAt.UTC(), due)
}

// ResolveIncidentMinutes resolves an incident's SLA via its assigned org's
// active contract; without one, config defaults by severity apply.
func (c *Clock) ResolveIncidentMinutes(ctx context.Context, orgID *int64, sev store.Severity) (int, error) {
	if orgID != nil {
		contract, err := c.contracts.ActiveContract(ctx, *orgID)
		if err != nil {
			return 0, err
		}
		if contract != nil {
			if m := contract.MinutesFor(sev); m > 0 {
				return m, nil
			}
		}
	}
	return severityDefault(c.cfg, sev), nil
}
