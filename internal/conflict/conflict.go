// Package conflict decides whether a proposed window collides with an
// existing window of the same kind in the same household.
//
// Intervals are half-open: [start, end). Two intervals overlap iff each
// starts before the other ends, so back-to-back windows never conflict.
package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/housemate/internal/metrics"
	"github.com/dukerupert/housemate/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether a and b share any instant.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Candidate is a window about to be created or moved.
type Candidate struct {
	HouseholdID string
	Kind        model.WindowKind
	Interval
	// ExcludeID is the id of the window being updated, if any.
	ExcludeID string
}

// Finder looks up the first stored window overlapping a candidate. The
// store implements it on both pooled and transactional handles.
type Finder interface {
	FindOverlap(ctx context.Context, householdID string, kind model.WindowKind, start, end time.Time, excludeID string) (*model.Window, error)
}

// OverlapError identifies the existing window a candidate collides with.
type OverlapError struct {
	Kind     model.WindowKind
	WindowID string
	UserID   string
	Username string
	Start    time.Time
	End      time.Time
}

func (e *OverlapError) Error() string {
	who := e.Username
	if who == "" {
		who = "another member"
	}
	return fmt.Sprintf("overlaps %s's %s from %s to %s", who, kindLabel(e.Kind),
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
}

func kindLabel(k model.WindowKind) string {
	if k == model.KindQuietTime {
		return "quiet time"
	}
	return "guest announcement"
}

type Engine struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEngine(m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{metrics: m, logger: logger}
}

// Check returns an *OverlapError if c collides with a stored window. It
// never writes; callers run it inside the transaction that persists c.
func (e *Engine) Check(ctx context.Context, f Finder, c Candidate) error {
	if !c.Start.Before(c.End) {
		return fmt.Errorf("empty interval %s..%s", c.Start, c.End)
	}

	w, err := f.FindOverlap(ctx, c.HouseholdID, c.Kind, c.Start, c.End, c.ExcludeID)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if w == nil {
		return nil
	}
	if !Overlaps(Interval{Start: w.StartTime, End: w.EndTime}, c.Interval) {
		return fmt.Errorf("store reported non-overlapping window %s as conflict", w.ID)
	}

	e.metrics.ConflictDetected(string(c.Kind))
	e.logger.Debug("window conflict",
		"household_id", c.HouseholdID,
		"kind", c.Kind,
		"conflicting_window_id", w.ID,
	)

	oe := &OverlapError{
		Kind:     w.Kind,
		WindowID: w.ID,
		UserID:   w.UserID,
		Start:    w.StartTime,
		End:      w.EndTime,
	}
	if w.User != nil {
		oe.Username = w.User.Username
	}
	return oe
}
