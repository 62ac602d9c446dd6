package task

import (
	"log/slog"
	"time"

	"github.com/dukerupert/housemate/internal/model"
	"github.com/dukerupert/housemate/internal/recurrence"
)

// EffectiveStatus is the status shown to members: an unfinished task whose
// due date has passed reads as OVERDUE.
func EffectiveStatus(t model.Task, now time.Time) model.TaskStatus {
	if t.Status == model.TaskCompleted {
		return model.TaskCompleted
	}
	if t.DueDate.Before(now) {
		return model.TaskOverdue
	}
	return t.Status
}

// Completion describes what marking a task COMPLETED stores.
type Completion struct {
	Status  model.TaskStatus
	NextDue time.Time
}

// Complete returns the stored outcome of completing t at now. One-off tasks
// stay COMPLETED. Recurring tasks reopen as PENDING at their next
// occurrence after now.
func Complete(t model.Task, now time.Time) Completion {
	if t.Frequency == "" {
		return Completion{Status: model.TaskCompleted, NextDue: t.DueDate}
	}

	rule, err := recurrence.Parse(t.Frequency)
	if err != nil {
		slog.Error("invalid task frequency", "task_id", t.ID, "frequency", t.Frequency, "error", err)
		return Completion{Status: model.TaskCompleted, NextDue: t.DueDate}
	}

	after := now
	if t.DueDate.After(after) {
		after = t.DueDate
	}
	next := rule.Next(t.DueDate, after)
	if next.IsZero() {
		return Completion{Status: model.TaskCompleted, NextDue: t.DueDate}
	}
	return Completion{Status: model.TaskPending, NextDue: next}
}
