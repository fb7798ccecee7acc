package tests

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fiberops/config"
	"fiberops/core/alerts"
	"fiberops/core/breach"
	"fiberops/core/sla"
	"fiberops/core/status"
	"fiberops/core/store"
	"fiberops/core/utils"
)

type env struct {
	ctx         context.Context
	cfg         *config.AppConfig
	pons        store.PonsStore
	tasks       store.TasksStore
	incidents   store.IncidentsStore
	evidence    store.EvidenceStore
	contracts   store.ContractsStore
	maintenance store.MaintenanceStore
	events      store.WebhookEventsStore
	audits      store.AuditStore
	engine      *status.Engine
	clock       *sla.Clock
	scanner     *breach.Scanner
	alerts      *alerts.Service
}

func defaultTestConfig(dbPath string) *config.AppConfig {
	return &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    dbPath,
		SLA: config.SLAConfig{
			P1Minutes: 120,
			P2Minutes: 240,
			P3Minutes: 1440,
			P4Minutes: 4320,
		},
		Webhooks: config.WebhooksConfig{
			HMACSecret:          "test-secret",
			SuppressMaintenance: true,
		},
		Evidence: config.EvidenceConfig{PhotoRecencyHours: 24},
		Pons: config.PonsConfig{
			CompletionPolicy:   "evidence",
			RequiredPhotoKinds: []string{"dig", "plant", "cac", "stringing"},
		},
	}
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := defaultTestConfig(filepath.Join(dir, "test.db"))
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, cfg.DBDriver, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	e := &env{
		ctx:         context.Background(),
		cfg:         cfg,
		pons:        store.NewPonsStore(db),
		tasks:       store.NewTasksStore(db),
		incidents:   store.NewIncidentsStore(db),
		evidence:    store.NewEvidenceStore(db),
		contracts:   store.NewContractsStore(db),
		maintenance: store.NewMaintenanceStore(db),
		events:      store.NewWebhookEventsStore(db),
		audits:      store.NewAuditStore(db),
	}
	e.clock = sla.NewClock(cfg.SLA, e.tasks, e.contracts)
	e.engine = status.NewEngine(cfg.Pons, e.pons, e.tasks, e.evidence, logger)
	e.scanner = breach.NewScanner(e.tasks, e.incidents, e.pons, logger)
	e.alerts = alerts.NewService(cfg.Webhooks, e.events, e.incidents, e.contracts, e.maintenance, e.clock, logger)
	return e
}

func clockWithConfig(e *env) *sla.Clock {
	return sla.NewClock(e.cfg.SLA, e.tasks, e.contracts)
}

func (e *env) createPon(t *testing.T, name string, polesPlanned int) *store.Pon {
	t.Helper()
	p := &store.Pon{Name: name, Ward: "ward-7", PolesPlanned: polesPlanned}
	if _, err := e.pons.CreatePon(e.ctx, p); err != nil {
		t.Fatalf("create pon: %v", err)
	}
	return p
}

func (e *env) createTask(t *testing.T, ponID int64, step store.TaskStep) *store.Task {
	t.Helper()
	task := &store.Task{PonID: ponID, Step: step}
	if _, err := e.tasks.CreateTask(e.ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

// addCompleteEvidence records everything the evidence completion rule needs.
func (e *env) addCompleteEvidence(t *testing.T, pon *store.Pon) {
	t.Helper()
	now := time.Now().UTC()
	if err := e.pons.UpdatePonProgress(e.ctx, pon.ID, pon.PolesPlanned); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if _, err := e.evidence.AddCACCheck(e.ctx, &store.CACCheck{PonID: pon.ID, PoleRef: "p-1", Passed: true, MeasuredAt: now}); err != nil {
		t.Fatalf("cac: %v", err)
	}
	if _, err := e.evidence.AddStringingRun(e.ctx, &store.StringingRun{PonID: pon.ID, Meters: 1200, RecordedAt: now}); err != nil {
		t.Fatalf("stringing: %v", err)
	}
	for _, kind := range e.cfg.Pons.RequiredPhotoKinds {
		photo := &store.PonPhoto{PonID: pon.ID, Kind: kind, TakenAt: &now, EXIFValid: true, GeoValid: true}
		if _, err := e.evidence.AddPhoto(e.ctx, photo); err != nil {
			t.Fatalf("photo %s: %v", kind, err)
		}
	}
}
