package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/housemate/internal/model"
)

func TestTaskCreateAndComplete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice@example.com", "alice")
	hid := mustHousehold(t, s, "One", "AAAAAA", a)
	due := time.Date(2030, 1, 6, 18, 0, 0, 0, time.UTC)

	task, err := s.Tasks.Create(ctx, model.Task{
		HouseholdID:  hid,
		Title:        "Take out bins",
		DueDate:      due,
		Frequency:    "FREQ=WEEKLY",
		AssignedToID: &a,
		CreatedByID:  a,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != model.TaskPending {
		t.Errorf("status = %q, want %q", task.Status, model.TaskPending)
	}
	if task.AssignedTo == nil || task.AssignedTo.Username != "alice" {
		t.Errorf("assignedTo = %+v, want alice", task.AssignedTo)
	}

	done := due.Add(-time.Hour)
	next := due.AddDate(0, 0, 7)
	updated, err := s.Tasks.SetStatus(ctx, task.ID, model.TaskPending, &done, next)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.LastCompletedAt == nil || !updated.LastCompletedAt.Equal(done) {
		t.Errorf("lastCompletedAt = %v, want %v", updated.LastCompletedAt, done)
	}
	if !updated.DueDate.Equal(next) {
		t.Errorf("dueDate = %v, want %v", updated.DueDate, next)
	}
}

func TestTaskListOrderedByDueDate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice@example.com", "alice")
	hid := mustHousehold(t, s, "One", "AAAAAA", a)
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, offset := range []int{3, 1, 2} {
		if _, err := s.Tasks.Create(ctx, model.Task{
			HouseholdID: hid, Title: "t", DueDate: base.AddDate(0, 0, offset), CreatedByID: a,
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tasks, err := s.Tasks.ListForHousehold(ctx, hid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i].DueDate.Before(tasks[i-1].DueDate) {
			t.Fatalf("tasks out of order at %d", i)
		}
	}
}
