package database

import (
	"testing"
)

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tables := []string{"users", "households", "household_members", "household_invites", "scheduled_windows", "tasks"}
	for _, name := range tables {
		var got string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&got)
		if err != nil {
			t.Errorf("table %q missing: %v", name, err)
		}
	}
}

func TestOpenEnablesForeignKeys(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var on int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&on); err != nil {
		t.Fatalf("read pragma: %v", err)
	}
	if on != 1 {
		t.Errorf("foreign_keys = %d, want 1", on)
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{":memory:", ":memory:?" + dsnParams},
		{"file:test.db?cache=shared", "file:test.db?cache=shared&" + dsnParams},
	}
	for _, tt := range tests {
		if got := dsn(tt.path); got != tt.want {
			t.Errorf("dsn(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
