package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/housemate/internal/auth"
	"github.com/dukerupert/housemate/internal/model"
	"github.com/dukerupert/housemate/internal/task"
)

type TaskHandler struct {
	svc    *task.Service
	logger *slog.Logger
}

func NewTaskHandler(svc *task.Service, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{svc: svc, logger: logger}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req task.CreateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.svc.Create(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TaskHandler) CreateForAllMembers(w http.ResponseWriter, r *http.Request) {
	var req task.CreateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	tasks, err := h.svc.CreateForAllMembers(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tasks)
}

func (h *TaskHandler) ListForHousehold(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.List(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type statusRequest struct {
	Status model.TaskStatus `json:"status"`
}

func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.svc.UpdateStatus(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "task deleted"})
}
