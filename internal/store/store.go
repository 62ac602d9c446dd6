package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every store can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store groups the table stores over one connection handle.
type Store struct {
	db *sql.DB
	tx *sql.Tx

	Users      *UserStore
	Households *HouseholdStore
	Invites    *InviteStore
	Windows    *WindowStore
	Tasks      *TaskStore
}

func New(db *sql.DB) *Store {
	return bind(db, nil, db)
}

func bind(db *sql.DB, tx *sql.Tx, q DBTX) *Store {
	return &Store{
		db:         db,
		tx:         tx,
		Users:      &UserStore{db: q},
		Households: &HouseholdStore{db: q},
		Invites:    &InviteStore{db: q},
		Windows:    &WindowStore{db: q},
		Tasks:      &TaskStore{db: q},
	}
}

// InTx runs fn against a Store bound to a single transaction. The
// transaction commits if fn returns nil and rolls back otherwise. Calling
// InTx on a Store that is already transactional reuses the transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(bind(s.db, tx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

var (
	// ErrCodeTaken reports a household join code collision.
	ErrCodeTaken = errors.New("household code already in use")
	// ErrDuplicate reports any other unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")
)

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	// Primary result codes carry no subtype; fall back to the message.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsBusy reports whether err is SQLite lock contention that outlasted the
// busy timeout.
func IsBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

func newID() string {
	return uuid.NewString()
}

// Timestamps are stored as fixed-width UTC text so that string comparison
// in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// InRange reports whether t fits the four-digit year of the stored layout
// once converted to UTC.
func InRange(t time.Time) bool {
	y := t.UTC().Year()
	return y >= 1 && y <= 9999
}

// Truncate normalizes t to the precision the store keeps.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func now() time.Time {
	return Truncate(time.Now())
}
