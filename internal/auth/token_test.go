package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	token, err := m.Issue("u-1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u-1" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "u-1")
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "alice@example.com")
	}
}

func TestVerifyRejects(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	good, err := m.Issue("u-1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, _ := NewTokenManager("other-secret", time.Hour).Issue("u-1", "alice@example.com")

	expired := NewTokenManager("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Issue("u-1", "alice@example.com")

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"wrong secret", other, ErrInvalidToken},
		{"expired", old, ErrInvalidToken},
		{"tampered", good + "x", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Verify(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
