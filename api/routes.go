package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fiberops/api/handlers"
	"fiberops/core/rbac"
)

type routeHandlers struct {
	pons        *handlers.PonsHandler
	tasks       *handlers.TasksHandler
	evidence    *handlers.EvidenceHandler
	incidents   *handlers.IncidentsHandler
	maintenance *handlers.MaintenanceHandler
	webhooks    *handlers.WebhooksHandler
	workqueue   *handlers.WorkQueueHandler
	routing     *handlers.RoutingHandler
	events      *handlers.EventsHandler
}

func (s *Server) registerRoutes(r chi.Router, h routeHandlers) {
	r.MethodFunc("GET", "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Webhook intake authenticates by signature and source IP, not token.
	r.MethodFunc("POST", "/api/webhooks/{source}", h.webhooks.Receive)

	r.Route("/api/pons", func(pr chi.Router) {
		pr.MethodFunc("GET", "/", s.requirePermission(rbac.PermPonsView, h.pons.List))
		pr.MethodFunc("POST", "/", s.requirePermission(rbac.PermPonsManage, h.pons.Create))
		pr.MethodFunc("GET", "/{id:[0-9]+}", s.requirePermission(rbac.PermPonsView, h.pons.Get))
		pr.MethodFunc("PUT", "/{id:[0-9]+}/progress", s.requirePermission(rbac.PermEvidenceSubmit, h.pons.UpdateProgress))
		pr.MethodFunc("POST", "/{id:[0-9]+}/recompute", s.requirePermission(rbac.PermPonsView, h.pons.Recompute))
		pr.MethodFunc("POST", "/{id:[0-9]+}/tasks", s.requirePermission(rbac.PermTasksManage, h.tasks.Create))
		pr.MethodFunc("GET", "/{id:[0-9]+}/tasks", s.requirePermission(rbac.PermPonsView, h.tasks.ListByPon))
		pr.MethodFunc("POST", "/{id:[0-9]+}/cac", s.requirePermission(rbac.PermEvidenceSubmit, h.evidence.AddCACCheck))
		pr.MethodFunc("POST", "/{id:[0-9]+}/stringing", s.requirePermission(rbac.PermEvidenceSubmit, h.evidence.AddStringingRun))
		pr.MethodFunc("POST", "/{id:[0-9]+}/photos", s.requirePermission(rbac.PermEvidenceSubmit, h.evidence.AddPhoto))
		pr.MethodFunc("GET", "/{id:[0-9]+}/photos", s.requirePermission(rbac.PermPonsView, h.evidence.ListPhotos))
	})

	r.Route("/api/tasks", func(tr chi.Router) {
		tr.MethodFunc("POST", "/{id:[0-9]+}/transition", s.requirePermission(rbac.PermTasksManage, h.tasks.Transition))
	})

	r.Route("/api/incidents", func(ir chi.Router) {
		ir.MethodFunc("GET", "/", s.requirePermission(rbac.PermIncidentsView, h.incidents.List))
		ir.MethodFunc("GET", "/{id:[0-9]+}", s.requirePermission(rbac.PermIncidentsView, h.incidents.Get))
		ir.MethodFunc("POST", "/{id:[0-9]+}/acknowledge", s.requirePermission(rbac.PermIncidentsManage, h.incidents.Acknowledge))
		ir.MethodFunc("POST", "/{id:[0-9]+}/resolve", s.requirePermission(rbac.PermIncidentsManage, h.incidents.Resolve))
		ir.MethodFunc("POST", "/{id:[0-9]+}/close", s.requirePermission(rbac.PermIncidentsManage, h.incidents.Close))
	})

	r.Route("/api/maintenance", func(mr chi.Router) {
		mr.MethodFunc("GET", "/", s.requirePermission(rbac.PermMaintenanceView, h.maintenance.List))
		mr.MethodFunc("POST", "/", s.requirePermission(rbac.PermMaintenanceEdit, h.maintenance.Create))
		mr.MethodFunc("POST", "/{id:[0-9]+}/approve", s.requirePermission(rbac.PermMaintenanceEdit, h.maintenance.Approve))
		mr.MethodFunc("POST", "/{id:[0-9]+}/stop", s.requirePermission(rbac.PermMaintenanceEdit, h.maintenance.Stop))
	})

	r.Route("/api/orgs", func(or chi.Router) {
		or.MethodFunc("GET", "/", s.requirePermission(rbac.PermPonsView, h.routing.ListOrganizations))
		or.MethodFunc("POST", "/", s.requirePermission(rbac.PermPonsManage, h.routing.CreateOrganization))
		or.MethodFunc("POST", "/{id:[0-9]+}/contracts", s.requirePermission(rbac.PermPonsManage, h.routing.CreateContract))
		or.MethodFunc("GET", "/{id:[0-9]+}/work-queue", s.requirePermission(rbac.PermIncidentsView, h.workqueue.Get))
	})

	r.MethodFunc("POST", "/api/assignments", s.requirePermission(rbac.PermPonsManage, h.routing.CreateAssignment))
	r.MethodFunc("POST", "/api/devices", s.requirePermission(rbac.PermPonsManage, h.routing.CreateDevice))

	r.MethodFunc("GET", "/api/webhook-events", s.requirePermission(rbac.PermWebhookEventView, h.events.ListWebhookEvents))
	r.MethodFunc("GET", "/api/audit", s.requirePermission(rbac.PermAuditView, h.events.ListAudit))
}
