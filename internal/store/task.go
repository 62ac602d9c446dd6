package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/housemate/internal/model"
)

type TaskStore struct {
	db DBTX
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var (
		t                    model.Task
		due                  string
		assignedTo           sql.NullString
		lastCompleted        sql.NullString
		createdAt, updatedAt string
		assigneeName         sql.NullString
	)
	err := scanner.Scan(
		&t.ID, &t.HouseholdID, &t.Title, &t.Description, &due, &t.Frequency, &t.Status,
		&assignedTo, &t.CreatedByID, &lastCompleted, &createdAt, &updatedAt, &assigneeName,
	)
	if err != nil {
		return nil, err
	}
	if t.DueDate, err = parseTime(due); err != nil {
		return nil, err
	}
	if t.LastCompletedAt, err = parseNullTime(lastCompleted); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	t.AssignedToID = stringPtr(assignedTo)
	if t.AssignedToID != nil && assigneeName.Valid {
		t.AssignedTo = &model.UserRef{ID: *t.AssignedToID, Username: assigneeName.String}
	}
	return &t, nil
}

const taskSelect = `SELECT t.id, t.household_id, t.title, t.description, t.due_date, t.frequency, t.status,
	t.assigned_to_id, t.created_by_id, t.last_completed_at, t.created_at, t.updated_at, u.username
	FROM tasks t
	LEFT JOIN users u ON u.id = t.assigned_to_id`

func (s *TaskStore) Create(ctx context.Context, t model.Task) (*model.Task, error) {
	id := newID()
	ts := formatTime(now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks
		 (id, household_id, title, description, due_date, frequency, status, assigned_to_id, created_by_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, t.HouseholdID, t.Title, t.Description, formatTime(t.DueDate), t.Frequency, model.TaskPending,
		nullString(t.AssignedToID), t.CreatedByID, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) GetByID(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// SetStatus stores a new status, and when completedAt is non-nil records
// the completion and moves the due date to nextDue.
func (s *TaskStore) SetStatus(ctx context.Context, id string, status model.TaskStatus, completedAt *time.Time, nextDue time.Time) (*model.Task, error) {
	var err error
	if completedAt != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, last_completed_at = ?, due_date = ?, updated_at = ? WHERE id = ?`,
			status, formatTime(*completedAt), formatTime(nextDue), formatTime(now()), id,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
			status, formatTime(now()), id,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListForHousehold returns a household's tasks ordered by due date.
func (s *TaskStore) ListForHousehold(ctx context.Context, householdID string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		taskSelect+` WHERE t.household_id = ? ORDER BY t.due_date ASC, t.id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UnassignUser clears assignments to a user within one household.
func (s *TaskStore) UnassignUser(ctx context.Context, householdID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET assigned_to_id = NULL, updated_at = ? WHERE household_id = ? AND assigned_to_id = ?`,
		formatTime(now()), householdID, userID,
	)
	if err != nil {
		return fmt.Errorf("unassign tasks: %w", err)
	}
	return nil
}

func (s *TaskStore) DeleteForHousehold(ctx context.Context, householdID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE household_id = ?`, householdID)
	if err != nil {
		return fmt.Errorf("delete household tasks: %w", err)
	}
	return nil
}
