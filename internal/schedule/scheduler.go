// Package schedule manages guest announcements and quiet-time blocks.
// Both are time windows owned by a member; windows of the same kind in a
// household never overlap.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/housemate/internal/apperr"
	"github.com/dukerupert/housemate/internal/conflict"
	"github.com/dukerupert/housemate/internal/household"
	"github.com/dukerupert/housemate/internal/model"
	"github.com/dukerupert/housemate/internal/store"
)

type Scheduler struct {
	store  *store.Store
	engine *conflict.Engine
	logger *slog.Logger
	now    func() time.Time
}

func NewScheduler(st *store.Store, engine *conflict.Engine, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: st, engine: engine, logger: logger, now: time.Now}
}

// CreateInput is the request body for a new window. GuestCount applies to
// guest windows; Title and Category to quiet time.
type CreateInput struct {
	HouseholdID string `json:"householdId"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	GuestCount  int    `json:"guestCount"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// UpdateInput carries the fields to change. Nil fields keep their value.
type UpdateInput struct {
	StartTime   *string `json:"startTime"`
	EndTime     *string `json:"endTime"`
	GuestCount  *int    `json:"guestCount"`
	Title       *string `json:"title"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
}

// Create validates the window, checks the caller is a member and that no
// window of the same kind overlaps, then stores it. The check and the
// insert share one transaction.
func (s *Scheduler) Create(ctx context.Context, kind model.WindowKind, callerID string, in CreateInput) (*model.Window, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("unknown window kind")
	}
	w := model.Window{
		Kind:        kind,
		HouseholdID: strings.TrimSpace(in.HouseholdID),
		UserID:      callerID,
		GuestCount:  in.GuestCount,
		Title:       strings.TrimSpace(in.Title),
		Category:    model.QuietCategory(strings.ToLower(strings.TrimSpace(in.Category))),
		Description: strings.TrimSpace(in.Description),
	}
	if w.HouseholdID == "" {
		return nil, apperr.Validation("householdId is required")
	}
	var err error
	if w.StartTime, err = parseTimestamp("startTime", in.StartTime); err != nil {
		return nil, err
	}
	if w.EndTime, err = parseTimestamp("endTime", in.EndTime); err != nil {
		return nil, err
	}
	if w.StartTime.Before(store.Truncate(s.now())) {
		return nil, apperr.Validation("startTime must not be in the past")
	}
	if err := validate(&w); err != nil {
		return nil, err
	}

	var created *model.Window
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		if _, err := household.RequireMember(ctx, tx, w.HouseholdID, callerID); err != nil {
			return err
		}
		if err := s.engine.Check(ctx, tx.Windows, candidate(w)); err != nil {
			return err
		}
		created, err = tx.Windows.Create(ctx, w)
		return err
	})
	if err != nil {
		return nil, s.classify(err, "failed to create "+label(kind))
	}

	s.logger.Info("window created",
		"window_id", created.ID,
		"kind", kind,
		"household_id", created.HouseholdID,
		"user_id", callerID,
	)
	return created, nil
}

// ListForHousehold returns windows of one kind that have not yet ended,
// earliest first.
func (s *Scheduler) ListForHousehold(ctx context.Context, kind model.WindowKind, callerID, householdID string) ([]model.Window, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("unknown window kind")
	}
	if _, err := household.RequireMember(ctx, s.store, householdID, callerID); err != nil {
		return nil, s.classify(err, "failed to list "+label(kind))
	}
	windows, err := s.store.Windows.ListUpcoming(ctx, householdID, kind, store.Truncate(s.now()))
	if err != nil {
		return nil, apperr.Internal("failed to list "+label(kind), err)
	}
	return windows, nil
}

// Update changes a window. Only its creator may update it, and only while
// still a member. Moving the window re-runs the overlap check against
// every other window of its kind.
func (s *Scheduler) Update(ctx context.Context, kind model.WindowKind, callerID, windowID string, in UpdateInput) (*model.Window, error) {
	var updated *model.Window
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		w, err := loadWindow(ctx, tx, kind, windowID)
		if err != nil {
			return err
		}
		if w.UserID != callerID {
			return apperr.Forbidden("only the creator can update this " + label(kind))
		}
		if _, err := household.RequireMember(ctx, tx, w.HouseholdID, callerID); err != nil {
			return err
		}

		moved, err := apply(w, in)
		if err != nil {
			return err
		}
		if err := validate(w); err != nil {
			return err
		}
		if moved {
			c := candidate(*w)
			c.ExcludeID = w.ID
			if err := s.engine.Check(ctx, tx.Windows, c); err != nil {
				return err
			}
		}
		updated, err = tx.Windows.Update(ctx, *w)
		return err
	})
	if err != nil {
		return nil, s.classify(err, "failed to update "+label(kind))
	}
	return updated, nil
}

// Delete removes a window. The creator or the household owner may delete
// it.
func (s *Scheduler) Delete(ctx context.Context, kind model.WindowKind, callerID, windowID string) error {
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		w, err := loadWindow(ctx, tx, kind, windowID)
		if err != nil {
			return err
		}
		h, err := household.RequireMember(ctx, tx, w.HouseholdID, callerID)
		if err != nil {
			return err
		}
		if w.UserID != callerID && h.OwnerID != callerID {
			return apperr.Forbidden("only the creator or the household owner can delete this " + label(kind))
		}
		return tx.Windows.Delete(ctx, w.ID)
	})
	if err != nil {
		return s.classify(err, "failed to delete "+label(kind))
	}

	s.logger.Info("window deleted", "window_id", windowID, "kind", kind, "user_id", callerID)
	return nil
}

// loadWindow fetches a window and hides windows of the other kind, so a
// guest id never resolves through the quiet-time routes.
func loadWindow(ctx context.Context, tx *store.Store, kind model.WindowKind, id string) (*model.Window, error) {
	w, err := tx.Windows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil || w.Kind != kind {
		return nil, apperr.NotFound(label(kind) + " not found")
	}
	return w, nil
}

// apply copies the set fields of in onto w and reports whether the
// interval changed.
func apply(w *model.Window, in UpdateInput) (bool, error) {
	var moved bool
	if in.StartTime != nil {
		t, err := parseTimestamp("startTime", *in.StartTime)
		if err != nil {
			return false, err
		}
		moved = moved || !t.Equal(w.StartTime)
		w.StartTime = t
	}
	if in.EndTime != nil {
		t, err := parseTimestamp("endTime", *in.EndTime)
		if err != nil {
			return false, err
		}
		moved = moved || !t.Equal(w.EndTime)
		w.EndTime = t
	}
	if in.GuestCount != nil {
		w.GuestCount = *in.GuestCount
	}
	if in.Title != nil {
		w.Title = strings.TrimSpace(*in.Title)
	}
	if in.Category != nil {
		w.Category = model.QuietCategory(strings.ToLower(strings.TrimSpace(*in.Category)))
	}
	if in.Description != nil {
		w.Description = strings.TrimSpace(*in.Description)
	}
	return moved, nil
}

// validate checks the interval and the payload of w's kind, and clears
// fields that belong to the other kind.
func validate(w *model.Window) error {
	if !w.EndTime.After(w.StartTime) {
		return apperr.Validation("endTime must be after startTime")
	}
	switch w.Kind {
	case model.KindGuest:
		if w.GuestCount < 1 {
			return apperr.Validation("guestCount must be at least 1")
		}
		w.Title, w.Category = "", ""
	case model.KindQuietTime:
		if w.Title == "" {
			return apperr.Validation("title is required")
		}
		if !w.Category.Valid() {
			return apperr.Validation("category must be one of exam, study, quiet")
		}
		w.GuestCount = 0
	}
	return nil
}

func parseTimestamp(field, v string) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return time.Time{}, apperr.Validation(field + " is required")
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, apperr.Validation(field + " must be an RFC 3339 timestamp")
	}
	if !store.InRange(t) {
		return time.Time{}, apperr.Validation(field + " is out of range")
	}
	return store.Truncate(t), nil
}

func candidate(w model.Window) conflict.Candidate {
	return conflict.Candidate{
		HouseholdID: w.HouseholdID,
		Kind:        w.Kind,
		Interval:    conflict.Interval{Start: w.StartTime, End: w.EndTime},
	}
}

func label(kind model.WindowKind) string {
	if kind == model.KindQuietTime {
		return "quiet time"
	}
	return "guest announcement"
}

// classify passes application errors through, turns overlaps into
// Conflict errors that keep the OverlapError reachable, and hides
// everything else behind an Internal error.
func (s *Scheduler) classify(err error, msg string) error {
	var oe *conflict.OverlapError
	if errors.As(err, &oe) {
		return apperr.Wrap(apperr.KindConflict, "time slot "+oe.Error(), oe)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	s.logger.Error(msg, "error", err)
	return apperr.Internal(msg, err)
}
