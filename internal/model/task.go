package model

import "time"

type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	// TaskOverdue is derived at read time and never stored.
	TaskOverdue TaskStatus = "OVERDUE"
)

func (s TaskStatus) Storable() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

type Task struct {
	ID              string     `json:"id"`
	HouseholdID     string     `json:"householdId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DueDate         time.Time  `json:"dueDate"`
	Frequency       string     `json:"frequency"`
	Status          TaskStatus `json:"status"`
	AssignedToID    *string    `json:"assignedToId"`
	CreatedByID     string     `json:"createdById"`
	LastCompletedAt *time.Time `json:"lastCompletedAt"`
	AssignedTo      *UserRef   `json:"assignedTo,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
