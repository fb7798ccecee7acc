package appbootstrap

import (
	"database/sql"

	"fiberops/api"
	"fiberops/config"
	"fiberops/core/alerts"
	"fiberops/core/breach"
	"fiberops/core/jobs"
	"fiberops/core/rbac"
	"fiberops/core/sla"
	"fiberops/core/status"
	"fiberops/core/store"
	"fiberops/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	pons := store.NewPonsStore(db)
	tasks := store.NewTasksStore(db)
	incidents := store.NewIncidentsStore(db)
	evidence := store.NewEvidenceStore(db)
	contracts := store.NewContractsStore(db)
	maintenance := store.NewMaintenanceStore(db)
	events := store.NewWebhookEventsStore(db)
	audits := store.NewAuditStore(db)

	clock := sla.NewClock(cfg.SLA, tasks, contracts)
	engine := status.NewEngine(cfg.Pons, pons, tasks, evidence, logger)
	scanner := breach.NewScanner(tasks, incidents, pons, logger)
	alertsSvc := alerts.NewService(cfg.Webhooks, events, incidents, contracts, maintenance, clock, logger)

	policy, err := rbac.NewPolicy()
	if err != nil {
		return nil, err
	}

	var workers []api.BackgroundWorker
	if cfg.Scheduler.Enabled {
		scheduler := jobs.NewScheduler(logger)
		if err := jobs.RegisterAll(scheduler, *cfg, scanner, pons, evidence, events, logger); err != nil {
			return nil, err
		}
		workers = append(workers, scheduler)
	}

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Pons:        pons,
			Tasks:       tasks,
			Incidents:   incidents,
			Evidence:    evidence,
			Contracts:   contracts,
			Maintenance: maintenance,
			Events:      events,
			Audits:      audits,
			Engine:      engine,
			Clock:       clock,
			Alerts:      alertsSvc,
			Scanner:     scanner,
			Policy:      policy,
		},
		workers: workers,
	}, nil
}
