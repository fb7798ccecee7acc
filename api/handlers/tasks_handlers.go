package handlers

import (
	"errors"
	"net/http"
	"time"

	"fiberops/core/sla"
	"fiberops/core/status"
	"fiberops/core/store"
	"fiberops/core/utils"
)

type TasksHandler struct {
	tasks  store.TasksStore
	engine *status.Engine
	clock  *sla.Clock
	audits store.AuditStore
	logger *utils.Logger
}

func NewTasksHandler(tasks store.TasksStore, engine *status.Engine, clock *sla.Clock, audits store.AuditStore, logger *utils.Logger) *TasksHandler {
	return &TasksHandler{tasks: tasks, engine: engine, clock: clock, audits: audits, logger: logger}
}

type createTaskRequest struct {
	Step       string `json:"step"`
	SLAMinutes *int   `json:"sla_minutes"`
}

func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	ponID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	step, ok := store.ParseStep(req.Step)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown step")
		return
	}
	if req.SLAMinutes != nil && *req.SLAMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "sla_minutes must be positive")
		return
	}
	t := &store.Task{PonID: ponID, Step: step, SLAMinutes: req.SLAMinutes}
	if _, err := h.tasks.CreateTask(r.Context(), t); err != nil {
		h.logger.Errorf("create task for pon %d: %v", ponID, err)
		writeError(w, http.StatusInternalServerError, "cannot create task")
		return
	}
	_ = h.audits.Append(r.Context(), "api", "task.create", string(step))
	writeJSON(w, http.StatusCreated, t)
}

func (h *TasksHandler) ListByPon(w http.ResponseWriter, r *http.Request) {
	ponID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	tasks, err := h.tasks.TasksByPon(r.Context(), ponID)
	if err != nil {
		h.logger.Errorf("list tasks for pon %d: %v", ponID, err)
		writeError(w, http.StatusInternalServerError, "cannot list tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tasks})
}

type transitionRequest struct {
	Status string `json:"status"`
}

// Transition moves a task through its lifecycle. Entering in_progress starts
// the SLA clock exactly once; finishing a task triggers a status recompute on
// the owning PON.
func (h *TasksHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	next := store.TaskStatus(req.Status)
	task, err := h.tasks.GetTask(r.Context(), id)
	if err != nil {
		h.logger.Errorf("get task %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot load task")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err := h.engine.ValidateTaskTransition(r.Context(), task, next); err != nil {
		var terr *status.TransitionError
		if errors.As(err, &terr) {
			writeError(w, http.StatusConflict, terr.Reason)
			return
		}
		h.logger.Errorf("validate task %d transition: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot validate transition")
		return
	}
	now := time.Now().UTC()
	if err := h.tasks.SetTaskStatus(r.Context(), id, next, now); err != nil {
		h.logger.Errorf("set task %d status: %v", id, err)
		writeError(w, http.StatusInternalServerError, "cannot update task")
		return
	}
	if next == store.TaskInProgress {
		started, err := h.clock.StartTaskTimer(r.Context(), task, now)
		if err != nil {
			h.logger.Errorf("start task %d timer: %v", id, err)
			writeError(w, http.StatusInternalServerError, "cannot start sla timer")
			return
		}
		if started {
			_ = h.audits.Append(r.Context(), "api", "task.sla_started", string(task.Step))
		}
	}
	if next == store.TaskDone {
		if _, _, err := h.engine.RecomputeStatus(r.Context(), task.PonID, now); err != nil {
			h.logger.Errorf("recompute pon %d after task %d: %v", task.PonID, id, err)
			writeError(w, http.StatusInternalServerError, "task updated but status recompute failed")
			return
		}
	}
	fresh, err := h.tasks.GetTask(r.Context(), id)
	if err != nil || fresh == nil {
		writeError(w, http.StatusInternalServerError, "cannot reload task")
		return
	}
	writeJSON(w, http.StatusOK, fresh)
}
