package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/housemate/internal/auth"
)

type AuthHandler struct {
	svc    *auth.Service
	logger *slog.Logger
}

func NewAuthHandler(svc *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.svc.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Me(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type avatarRequest struct {
	AvatarURL string `json:"avatarUrl"`
}

func (h *AuthHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	var req avatarRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.SetAvatar(r.Context(), auth.UserID(r.Context()), req.AvatarURL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
