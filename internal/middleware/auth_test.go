package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/housemate/internal/auth"
	"github.com/dukerupert/housemate/internal/database"
	"github.com/dukerupert/housemate/internal/store"
)

func setupAuthMiddlewareDB(t *testing.T) (*auth.TokenManager, *store.UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return auth.NewTokenManager("test-secret", time.Hour), store.New(db).Users
}

func unreachable(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	})
}

func TestRequireAuthNoHeader(t *testing.T) {
	tm, us := setupAuthMiddlewareDB(t)
	handler := RequireAuth(tm, us)(unreachable(t))

	req := httptest.NewRequest("GET", "/api/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected an error message")
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	tm, us := setupAuthMiddlewareDB(t)
	handler := RequireAuth(tm, us)(unreachable(t))

	for _, h := range []string{"Bearer invalid-token", "Basic dXNlcjpwYXNz", "Bearer"} {
		req := httptest.NewRequest("GET", "/api/me", nil)
		req.Header.Set("Authorization", h)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%q: status = %d, want %d", h, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestRequireAuthDeletedAccount(t *testing.T) {
	tm, us := setupAuthMiddlewareDB(t)
	token, err := tm.Issue("ghost", "ghost@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	handler := RequireAuth(tm, us)(unreachable(t))

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidToken(t *testing.T) {
	tm, us := setupAuthMiddlewareDB(t)
	u, err := us.Create(context.Background(), "alice@example.com", "alice", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := tm.Issue(u.ID, u.Email)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var gotAC auth.AuthContext
	handler := RequireAuth(tm, us)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		gotAC = ac
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotAC.UserID != u.ID {
		t.Errorf("UserID = %q, want %q", gotAC.UserID, u.ID)
	}
	if gotAC.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", gotAC.Email, "alice@example.com")
	}
}
