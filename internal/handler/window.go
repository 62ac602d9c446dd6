package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/housemate/internal/auth"
	"github.com/dukerupert/housemate/internal/model"
	"github.com/dukerupert/housemate/internal/schedule"
)

// WindowHandler serves one window kind. The guest and quiet-time routes
// each get their own instance over the shared scheduler.
type WindowHandler struct {
	kind   model.WindowKind
	sched  *schedule.Scheduler
	logger *slog.Logger
}

func NewWindowHandler(kind model.WindowKind, sched *schedule.Scheduler, logger *slog.Logger) *WindowHandler {
	return &WindowHandler{kind: kind, sched: sched, logger: logger}
}

func (h *WindowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req schedule.CreateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	win, err := h.sched.Create(r.Context(), h.kind, auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, win)
}

func (h *WindowHandler) ListForHousehold(w http.ResponseWriter, r *http.Request) {
	windows, err := h.sched.ListForHousehold(r.Context(), h.kind, auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

func (h *WindowHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req schedule.UpdateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	win, err := h.sched.Update(r.Context(), h.kind, auth.UserID(r.Context()), r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (h *WindowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.Delete(r.Context(), h.kind, auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": deletedMessage(h.kind)})
}

func deletedMessage(kind model.WindowKind) string {
	if kind == model.KindGuest {
		return "guest announcement deleted"
	}
	return "quiet time deleted"
}
