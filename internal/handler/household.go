package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/housemate/internal/apperr"
	"github.com/dukerupert/housemate/internal/auth"
	"github.com/dukerupert/housemate/internal/household"
)

type HouseholdHandler struct {
	registry *household.Registry
	logger   *slog.Logger
}

func NewHouseholdHandler(reg *household.Registry, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{registry: reg, logger: logger}
}

type createHouseholdRequest struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"isPrivate"`
}

func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHouseholdRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hh, err := h.registry.Create(r.Context(), auth.UserID(r.Context()), req.Name, req.IsPrivate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, hh)
}

func (h *HouseholdHandler) List(w http.ResponseWriter, r *http.Request) {
	dir, err := h.registry.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dir)
}

type joinRequest struct {
	Code string `json:"code"`
}

func (h *HouseholdHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		badRequest(w, "code is required")
		return
	}
	hh, err := h.registry.JoinByCode(r.Context(), auth.UserID(r.Context()), req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hh)
}

func (h *HouseholdHandler) Details(w http.ResponseWriter, r *http.Request) {
	details, err := h.registry.Details(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *HouseholdHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Leave(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "left household"})
}

type transferRequest struct {
	NewOwnerID string `json:"newOwnerId"`
}

func (h *HouseholdHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.registry.TransferOwnership(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), req.NewOwnerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ownership transferred"})
}

func (h *HouseholdHandler) Kick(w http.ResponseWriter, r *http.Request) {
	err := h.registry.KickMember(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), r.PathValue("memberId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}

type disbandResponse struct {
	Error string `json:"error,omitempty"`
	household.DisbandResult
}

// Disband reports the outcome status in every response. A partial disband
// is a 500 whose body still says "partial" so clients can tell it apart.
func (h *HouseholdHandler) Disband(w http.ResponseWriter, r *http.Request) {
	res, err := h.registry.Disband(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err == nil {
		writeJSON(w, http.StatusOK, disbandResponse{DisbandResult: res})
		return
	}
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error("disband failed", "status", res.Status, "error", err)
	}
	writeJSON(w, apperr.KindOf(err).Status(), disbandResponse{Error: apperr.Message(err), DisbandResult: res})
}

type inviteRequest struct {
	Email string `json:"email"`
}

func (h *HouseholdHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.registry.Invite(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *HouseholdHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.registry.ListInvites(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invites)
}

type respondRequest struct {
	Accept *bool `json:"accept"`
}

func (h *HouseholdHandler) RespondToInvite(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Accept == nil {
		badRequest(w, "accept is required")
		return
	}
	if err := h.registry.RespondToInvite(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), *req.Accept); err != nil {
		writeError(w, h.logger, err)
		return
	}
	msg := "invite rejected"
	if *req.Accept {
		msg = "invite accepted"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}
