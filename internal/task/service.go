// Package task manages household chores: one-off or recurring tasks
// assigned to members.
package task

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/housemate/internal/apperr"
	"github.com/dukerupert/housemate/internal/household"
	"github.com/dukerupert/housemate/internal/model"
	"github.com/dukerupert/housemate/internal/recurrence"
	"github.com/dukerupert/housemate/internal/store"
)

type Service struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st *store.Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger, now: time.Now}
}

type CreateInput struct {
	HouseholdID  string  `json:"householdId"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	DueDate      string  `json:"dueDate"`
	Frequency    string  `json:"frequency"`
	AssignedToID *string `json:"assignedToId"`
}

type draft struct {
	householdID string
	title       string
	description string
	due         time.Time
	frequency   string
}

func (in CreateInput) validate() (draft, error) {
	d := draft{
		householdID: strings.TrimSpace(in.HouseholdID),
		title:       strings.TrimSpace(in.Title),
		description: strings.TrimSpace(in.Description),
	}
	if d.householdID == "" {
		return d, apperr.Validation("householdId is required")
	}
	if d.title == "" {
		return d, apperr.Validation("title is required")
	}
	if in.DueDate == "" {
		return d, apperr.Validation("dueDate is required")
	}
	due, err := time.Parse(time.RFC3339, in.DueDate)
	if err != nil {
		return d, apperr.Validation("dueDate must be an RFC 3339 timestamp")
	}
	if !store.InRange(due) {
		return d, apperr.Validation("dueDate is out of range")
	}
	d.due = store.Truncate(due)
	if f := strings.TrimSpace(in.Frequency); f != "" {
		rule, err := recurrence.Parse(f)
		if err != nil {
			return d, apperr.Validation("invalid frequency: " + err.Error())
		}
		d.frequency = rule.String()
	}
	return d, nil
}

// Create adds a task. The assignee, when given, must be a member.
func (s *Service) Create(ctx context.Context, callerID string, in CreateInput) (*model.Task, error) {
	d, err := in.validate()
	if err != nil {
		return nil, err
	}

	var created *model.Task
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		h, err := household.RequireMember(ctx, tx, d.householdID, callerID)
		if err != nil {
			return err
		}
		if in.AssignedToID != nil && !slices.Contains(h.Members, *in.AssignedToID) {
			return apperr.Validation("assignee must be a member of the household")
		}
		created, err = tx.Tasks.Create(ctx, d.task(callerID, in.AssignedToID))
		return err
	})
	if err != nil {
		return nil, classify(err, "failed to create task")
	}

	s.logger.Info("task created", "task_id", created.ID, "household_id", created.HouseholdID)
	return s.present(*created), nil
}

// CreateForAllMembers adds one copy of the task per member, each assigned
// to that member.
func (s *Service) CreateForAllMembers(ctx context.Context, callerID string, in CreateInput) ([]model.Task, error) {
	d, err := in.validate()
	if err != nil {
		return nil, err
	}

	var created []model.Task
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		h, err := household.RequireMember(ctx, tx, d.householdID, callerID)
		if err != nil {
			return err
		}
		for _, memberID := range h.Members {
			assignee := memberID
			t, err := tx.Tasks.Create(ctx, d.task(callerID, &assignee))
			if err != nil {
				return err
			}
			created = append(created, *s.present(*t))
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to create tasks")
	}

	s.logger.Info("tasks created for all members", "household_id", d.householdID, "count", len(created))
	return created, nil
}

func (d draft) task(creatorID string, assignee *string) model.Task {
	return model.Task{
		HouseholdID:  d.householdID,
		Title:        d.title,
		Description:  d.description,
		DueDate:      d.due,
		Frequency:    d.frequency,
		AssignedToID: assignee,
		CreatedByID:  creatorID,
	}
}

// UpdateStatus lets any member move a task between PENDING, IN_PROGRESS
// and COMPLETED. Completing a recurring task reopens it at its next due
// date.
func (s *Service) UpdateStatus(ctx context.Context, callerID, taskID string, status model.TaskStatus) (*model.Task, error) {
	if !status.Storable() {
		return nil, apperr.Validation("status must be one of PENDING, IN_PROGRESS, COMPLETED")
	}

	var updated *model.Task
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		t, err := tx.Tasks.GetByID(ctx, taskID)
		if err != nil {
			return err
		}
		if t == nil {
			return apperr.NotFound("task not found")
		}
		if _, err := household.RequireMember(ctx, tx, t.HouseholdID, callerID); err != nil {
			return err
		}

		if status != model.TaskCompleted {
			updated, err = tx.Tasks.SetStatus(ctx, t.ID, status, nil, t.DueDate)
			return err
		}
		now := store.Truncate(s.now())
		c := Complete(*t, now)
		updated, err = tx.Tasks.SetStatus(ctx, t.ID, c.Status, &now, c.NextDue)
		return err
	})
	if err != nil {
		return nil, classify(err, "failed to update task")
	}
	return s.present(*updated), nil
}

// List returns the household's tasks by due date with their effective
// status.
func (s *Service) List(ctx context.Context, callerID, householdID string) ([]model.Task, error) {
	if _, err := household.RequireMember(ctx, s.store, householdID, callerID); err != nil {
		return nil, classify(err, "failed to list tasks")
	}
	tasks, err := s.store.Tasks.ListForHousehold(ctx, householdID)
	if err != nil {
		return nil, apperr.Internal("failed to list tasks", err)
	}
	for i := range tasks {
		tasks[i] = *s.present(tasks[i])
	}
	return tasks, nil
}

// Delete removes a task. The creator, the assignee or the household owner
// may delete it.
func (s *Service) Delete(ctx context.Context, callerID, taskID string) error {
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		t, err := tx.Tasks.GetByID(ctx, taskID)
		if err != nil {
			return err
		}
		if t == nil {
			return apperr.NotFound("task not found")
		}
		h, err := household.RequireMember(ctx, tx, t.HouseholdID, callerID)
		if err != nil {
			return err
		}
		assignee := t.AssignedToID != nil && *t.AssignedToID == callerID
		if t.CreatedByID != callerID && !assignee && h.OwnerID != callerID {
			return apperr.Forbidden("only the creator, the assignee or the owner can delete this task")
		}
		return tx.Tasks.Delete(ctx, t.ID)
	})
	if err != nil {
		return classify(err, "failed to delete task")
	}
	return nil
}

func (s *Service) present(t model.Task) *model.Task {
	t.Status = EffectiveStatus(t, s.now())
	return &t
}

func classify(err error, msg string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(msg, err)
}
