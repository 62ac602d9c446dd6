// Package repair reconciles user household pointers with membership rows
// and removes households a partial disband left without members.
//
// Membership rows are authoritative. Every fix is a single conditional
// statement (or one short transaction), so running the job concurrently
// with normal traffic never clobbers a legitimate change, and running it
// twice in a row reports nothing the second time.
package repair

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/dukerupert/housemate/internal/metrics"
	"github.com/dukerupert/housemate/internal/store"
)

type FixKind string

const (
	PointerCleared   FixKind = "pointer_cleared"
	PointerRestored  FixKind = "pointer_restored"
	HouseholdRemoved FixKind = "household_removed"
)

// Fix describes one repaired record.
type Fix struct {
	Kind        FixKind `json:"kind"`
	UserID      string  `json:"userId,omitempty"`
	HouseholdID string  `json:"householdId"`
}

type Report struct {
	DryRun            bool  `json:"dryRun"`
	Scanned           int   `json:"scanned"`
	PointersCleared   int   `json:"pointersCleared"`
	PointersRestored  int   `json:"pointersRestored"`
	HouseholdsRemoved int   `json:"householdsRemoved"`
	Fixes             []Fix `json:"fixes"`
}

// Total is the number of fixes applied, or that would be applied in a
// dry run.
func (r Report) Total() int {
	return r.PointersCleared + r.PointersRestored + r.HouseholdsRemoved
}

func (r *Report) add(f Fix) {
	switch f.Kind {
	case PointerCleared:
		r.PointersCleared++
	case PointerRestored:
		r.PointersRestored++
	case HouseholdRemoved:
		r.HouseholdsRemoved++
	}
	r.Fixes = append(r.Fixes, f)
}

type Job struct {
	store   *store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewJob(st *store.Store, m *metrics.Metrics, logger *slog.Logger) *Job {
	return &Job{store: st, metrics: m, logger: logger}
}

// busyRetries bounds how often a fix is retried when the database stays
// locked past its busy timeout.
const busyRetries = 3

// Run makes one reconciliation pass. Failed fixes do not stop the pass;
// their errors are combined into the returned error alongside the report
// of what did succeed.
func (j *Job) Run(ctx context.Context, dryRun bool) (Report, error) {
	report := Report{DryRun: dryRun, Fixes: []Fix{}}
	var errs error

	// Dangling pointers: the household is gone or the user has no
	// membership row anywhere.
	users, err := j.store.Users.ListWithHousehold(ctx)
	if err != nil {
		return report, fmt.Errorf("scan users: %w", err)
	}
	report.Scanned = len(users)
	for _, u := range users {
		hid := *u.HouseholdID
		member, err := j.store.Households.MembershipOf(ctx, u.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if member != "" {
			// Correct, or pointing at the wrong household: restored below.
			continue
		}
		fix := Fix{Kind: PointerCleared, UserID: u.ID, HouseholdID: hid}
		if dryRun {
			report.add(fix)
			continue
		}
		var changed bool
		err = j.withRetry(ctx, func(ctx context.Context) error {
			var err error
			changed, err = j.store.Users.ClearHouseholdIf(ctx, u.ID, hid)
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if changed {
			report.add(fix)
		}
	}

	// Missing or stale pointers for users who do hold a membership row.
	mismatches, err := j.store.Households.ListMembershipMismatches(ctx)
	if err != nil {
		return report, multierr.Append(errs, err)
	}
	for _, m := range mismatches {
		fix := Fix{Kind: PointerRestored, UserID: m.UserID, HouseholdID: m.HouseholdID}
		if dryRun {
			report.add(fix)
			continue
		}
		var changed bool
		err := j.withRetry(ctx, func(ctx context.Context) error {
			changed = false
			return j.store.InTx(ctx, func(tx *store.Store) error {
				current, err := tx.Households.MembershipOf(ctx, m.UserID)
				if err != nil || current != m.HouseholdID {
					return err
				}
				changed = true
				return tx.Users.SetHousehold(ctx, m.UserID, &m.HouseholdID)
			})
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if changed {
			report.add(fix)
		}
	}

	// Households a partial disband left behind.
	empty, err := j.store.Households.ListEmpty(ctx)
	if err != nil {
		return report, multierr.Append(errs, err)
	}
	for _, hid := range empty {
		fix := Fix{Kind: HouseholdRemoved, HouseholdID: hid}
		if dryRun {
			report.add(fix)
			continue
		}
		var removed bool
		err := j.withRetry(ctx, func(ctx context.Context) error {
			removed = false
			return j.store.InTx(ctx, func(tx *store.Store) error {
				var err error
				removed, err = removeIfEmpty(ctx, tx, hid)
				return err
			})
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if removed {
			report.add(fix)
		}
	}

	if !dryRun {
		j.metrics.RepairFixed(string(PointerCleared), report.PointersCleared)
		j.metrics.RepairFixed(string(PointerRestored), report.PointersRestored)
		j.metrics.RepairFixed(string(HouseholdRemoved), report.HouseholdsRemoved)
	}

	j.logger.Info("repair pass finished",
		"dry_run", dryRun,
		"scanned", report.Scanned,
		"pointers_cleared", report.PointersCleared,
		"pointers_restored", report.PointersRestored,
		"households_removed", report.HouseholdsRemoved,
		"errors", len(multierr.Errors(errs)),
	)
	return report, errs
}

// removeIfEmpty deletes a household and its scheduled data if it still has
// no members.
func removeIfEmpty(ctx context.Context, tx *store.Store, householdID string) (bool, error) {
	members, err := tx.Households.MemberIDs(ctx, householdID)
	if err != nil {
		return false, err
	}
	if len(members) > 0 {
		return false, nil
	}
	h, err := tx.Households.GetByID(ctx, householdID)
	if err != nil || h == nil {
		return false, err
	}
	if err := tx.Windows.DeleteForHousehold(ctx, householdID); err != nil {
		return false, err
	}
	if err := tx.Tasks.DeleteForHousehold(ctx, householdID); err != nil {
		return false, err
	}
	if err := tx.Invites.DeleteForHousehold(ctx, householdID); err != nil {
		return false, err
	}
	if _, err := tx.Users.ClearHouseholdForAll(ctx, householdID); err != nil {
		return false, err
	}
	if err := tx.Households.Delete(ctx, householdID); err != nil {
		return false, err
	}
	return true, nil
}

func (j *Job) withRetry(ctx context.Context, fn retry.RetryFunc) error {
	backoff := retry.WithMaxRetries(busyRetries, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if store.IsBusy(err) {
			j.logger.Warn("database busy, retrying repair fix", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// Every runs the job on a fixed interval until ctx is cancelled.
func (j *Job) Every(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx, false); err != nil {
				j.logger.Error("repair pass failed", "error", err)
			}
		}
	}
}
