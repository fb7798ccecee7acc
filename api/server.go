package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fiberops/api/handlers"
	"fiberops/config"
	"fiberops/core/alerts"
	"fiberops/core/breach"
	"fiberops/core/rbac"
	"fiberops/core/sla"
	"fiberops/core/status"
	"fiberops/core/store"
	"fiberops/core/utils"
)

// BackgroundWorker is anything with a start/stop lifecycle tied to the
// server's, like the job scheduler.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context)
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	Pons        store.PonsStore
	Tasks       store.TasksStore
	Incidents   store.IncidentsStore
	Evidence    store.EvidenceStore
	Contracts   store.ContractsStore
	Maintenance store.MaintenanceStore
	Events      store.WebhookEventsStore
	Audits      store.AuditStore

	Engine  *status.Engine
	Clock   *sla.Clock
	Alerts  *alerts.Service
	Scanner *breach.Scanner
	Policy  *rbac.Policy
}

type Server struct {
	cfg    *config.AppConfig
	deps   ServerDeps
	logger *utils.Logger
	tokens map[string][]string
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		tokens: parseTokenRoles(cfg),
	}
}

func (s *Server) Router() http.Handler {
	h := routeHandlers{
		pons:        handlers.NewPonsHandler(s.deps.Pons, s.deps.Tasks, s.deps.Engine, s.deps.Audits, s.logger),
		tasks:       handlers.NewTasksHandler(s.deps.Tasks, s.deps.Engine, s.deps.Clock, s.deps.Audits, s.logger),
		evidence:    handlers.NewEvidenceHandler(s.cfg.Evidence, s.deps.Pons, s.deps.Evidence, s.deps.Engine, s.logger),
		incidents:   handlers.NewIncidentsHandler(s.deps.Incidents, s.deps.Audits, s.logger),
		maintenance: handlers.NewMaintenanceHandler(s.deps.Maintenance, s.deps.Audits, s.logger),
		webhooks:    handlers.NewWebhooksHandler(s.deps.Alerts, s.logger),
		workqueue:   handlers.NewWorkQueueHandler(s.deps.Tasks, s.deps.Incidents, time.Duration(s.cfg.Scheduler.WorkQueueCacheSeconds)*time.Second),
		routing:     handlers.NewRoutingHandler(s.deps.Contracts, s.deps.Audits, s.logger),
		events:      handlers.NewEventsHandler(s.deps.Events, s.deps.Audits),
	}

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)
	s.registerRoutes(r, h)
	return r
}

// NewHTTPServer wraps the router into a server with sane timeouts.
func (s *Server) NewHTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
