package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/housemate/internal/apperr"
	"github.com/dukerupert/housemate/internal/conflict"
)

// maxBodyBytes caps request bodies; every payload here is a small form.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error    string        `json:"error"`
	Conflict *conflictBody `json:"conflict,omitempty"`
}

type conflictBody struct {
	WindowID string `json:"windowId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// writeError maps err to its HTTP status. Internal errors are logged and
// reported with a generic message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		logger.Error("request failed", "error", err)
	}

	body := errorBody{Error: apperr.Message(err)}
	var oe *conflict.OverlapError
	if errors.As(err, &oe) {
		body.Conflict = &conflictBody{WindowID: oe.WindowID, UserID: oe.UserID, Username: oe.Username}
	}
	writeJSON(w, kind.Status(), body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// decodeJSON reads a JSON body into v and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON")
		return false
	}
	return true
}
