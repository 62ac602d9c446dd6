package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/housemate/internal/auth"
	"github.com/dukerupert/housemate/internal/store"
)

// RequireAuth validates the bearer token, checks the account still exists
// and populates AuthContext. Failures get a 401 JSON body.
func RequireAuth(tokens *auth.TokenManager, users *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := tokens.Verify(bearerToken(r))
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			u, err := users.GetByID(r.Context(), claims.UserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if u == nil {
				unauthorized(w, "account no longer exists")
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: u.ID, Email: u.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="housemate"`)
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
