package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/housemate/internal/model"
)

// WindowStore persists guest announcements and quiet times in one table
// keyed by kind.
type WindowStore struct {
	db DBTX
}

func scanWindow(scanner interface{ Scan(...any) error }) (*model.Window, error) {
	var (
		w                    model.Window
		start, end           string
		createdAt, updatedAt string
		username             sql.NullString
	)
	err := scanner.Scan(
		&w.ID, &w.Kind, &w.HouseholdID, &w.UserID, &start, &end,
		&w.GuestCount, &w.Title, &w.Category, &w.Description, &createdAt, &updatedAt,
		&username,
	)
	if err != nil {
		return nil, err
	}
	if w.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if w.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if username.Valid {
		w.User = &model.UserRef{ID: w.UserID, Username: username.String}
	}
	return &w, nil
}

const windowSelect = `SELECT w.id, w.kind, w.household_id, w.user_id, w.start_time, w.end_time,
	w.guest_count, w.title, w.category, w.description, w.created_at, w.updated_at, u.username
	FROM scheduled_windows w
	LEFT JOIN users u ON u.id = w.user_id`

func (s *WindowStore) Create(ctx context.Context, w model.Window) (*model.Window, error) {
	id := newID()
	ts := formatTime(now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_windows
		 (id, kind, household_id, user_id, start_time, end_time, guest_count, title, category, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, w.Kind, w.HouseholdID, w.UserID, formatTime(w.StartTime), formatTime(w.EndTime),
		w.GuestCount, w.Title, w.Category, w.Description, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert window: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *WindowStore) GetByID(ctx context.Context, id string) (*model.Window, error) {
	row := s.db.QueryRowContext(ctx, windowSelect+` WHERE w.id = ?`, id)
	w, err := scanWindow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get window: %w", err)
	}
	return w, nil
}

// Update rewrites the mutable fields of a window.
func (s *WindowStore) Update(ctx context.Context, w model.Window) (*model.Window, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_windows
		 SET start_time = ?, end_time = ?, guest_count = ?, title = ?, category = ?, description = ?, updated_at = ?
		 WHERE id = ?`,
		formatTime(w.StartTime), formatTime(w.EndTime), w.GuestCount, w.Title, w.Category, w.Description,
		formatTime(now()), w.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update window: %w", err)
	}
	return s.GetByID(ctx, w.ID)
}

func (s *WindowStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_windows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	return nil
}

// ListUpcoming returns windows of one kind that have not ended before
// now, earliest first.
func (s *WindowStore) ListUpcoming(ctx context.Context, householdID string, kind model.WindowKind, now time.Time) ([]model.Window, error) {
	rows, err := s.db.QueryContext(ctx,
		windowSelect+` WHERE w.household_id = ? AND w.kind = ? AND w.end_time >= ?
		 ORDER BY w.start_time ASC, w.id ASC`,
		householdID, kind, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	windows := []model.Window{}
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		windows = append(windows, *w)
	}
	return windows, rows.Err()
}

// FindOverlap returns the earliest window of the same kind in the
// household whose [start, end) overlaps the candidate, or nil. Windows that
// only touch the candidate at an endpoint do not match. excludeID skips the
// window being edited.
func (s *WindowStore) FindOverlap(ctx context.Context, householdID string, kind model.WindowKind, start, end time.Time, excludeID string) (*model.Window, error) {
	cs, ce := formatTime(start), formatTime(end)
	row := s.db.QueryRowContext(ctx,
		windowSelect+` WHERE w.household_id = ? AND w.kind = ? AND w.id <> ?
		 AND (
		   (w.start_time <= ? AND w.end_time > ?)
		   OR (w.start_time < ? AND w.end_time >= ?)
		   OR (w.start_time >= ? AND w.end_time <= ?)
		 )
		 ORDER BY w.start_time ASC, w.id ASC
		 LIMIT 1`,
		householdID, kind, excludeID,
		cs, cs,
		ce, ce,
		cs, ce,
	)
	w, err := scanWindow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find overlapping window: %w", err)
	}
	return w, nil
}

func (s *WindowStore) DeleteForHousehold(ctx context.Context, householdID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_windows WHERE household_id = ?`, householdID)
	if err != nil {
		return fmt.Errorf("delete household windows: %w", err)
	}
	return nil
}
