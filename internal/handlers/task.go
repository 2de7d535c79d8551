package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/types"
)

const taskNotFound = "task not found"

// TaskHandler provides HTTP handlers for the caller's tasks.
type TaskHandler struct {
	taskService *services.TaskService
	logger      *slog.Logger
}

// NewTaskHandler constructs a handler with the provided service.
func NewTaskHandler(taskService *services.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{taskService: taskService, logger: logger}
}

// TaskRouter registers /task routes. Callers mount it behind RequireAuth.
func TaskRouter(r chi.Router, handler *TaskHandler) {
	r.Get("/", handler.ListTasks)
	r.Post("/", handler.CreateTask)
	r.Route("/{taskId}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Patch("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)
	})
}

// StatusRouter registers the /status routes.
func StatusRouter(r chi.Router, handler *TaskHandler) {
	r.Patch("/{taskId}", handler.UpdateStatus)
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	tasks, err := h.taskService.List(r.Context(), identity.UserID, types.TaskFilter{
		Priority:  query.Get("priority"),
		SortOrder: query.Get("sortOrder"),
		Search:    query.Get("search"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err, taskNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, "tasks retrieved", tasks)
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req services.TaskInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.taskService.Create(r.Context(), identity.UserID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, taskNotFound)
		return
	}

	writeSuccess(w, http.StatusCreated, "task created", created)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.Get(r.Context(), identity.UserID, chi.URLParam(r, "taskId"))
	if err != nil {
		writeServiceError(w, h.logger, err, taskNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, "task retrieved", task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req services.TaskInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.taskService.Update(r.Context(), identity.UserID, chi.URLParam(r, "taskId"), req)
	if err != nil {
		writeServiceError(w, h.logger, err, taskNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, "task updated", updated)
}

func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req services.StatusInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.taskService.UpdateStatus(r.Context(), identity.UserID, chi.URLParam(r, "taskId"), req)
	if err != nil {
		writeServiceError(w, h.logger, err, taskNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, "task status updated", updated)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	deleted, err := h.taskService.Delete(r.Context(), identity.UserID, chi.URLParam(r, "taskId"))
	if err != nil {
		writeServiceError(w, h.logger, err, taskNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, "task deleted", deleted)
}

func (h *TaskHandler) identity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return Identity{}, false
	}
	return identity, true
}
