package conflict

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/housemate/internal/model"
)

var base = time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)

func iv(startHour, startMin, endHour, endMin int) Interval {
	return Interval{
		Start: base.Add(time.Duration(startHour)*time.Hour + time.Duration(startMin)*time.Minute),
		End:   base.Add(time.Duration(endHour)*time.Hour + time.Duration(endMin)*time.Minute),
	}
}

func TestOverlaps(t *testing.T) {
	a := iv(10, 0, 11, 0)
	tests := []struct {
		name string
		b    Interval
		want bool
	}{
		{"touching after", iv(11, 0, 12, 0), false},
		{"touching before", iv(9, 0, 10, 0), false},
		{"straddles end", iv(10, 30, 11, 30), true},
		{"straddles start", iv(9, 30, 10, 30), true},
		{"contained", iv(10, 15, 10, 45), true},
		{"contains", iv(9, 0, 12, 0), true},
		{"identical", iv(10, 0, 11, 0), true},
		{"disjoint", iv(12, 0, 13, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(a, tt.b); got != tt.want {
				t.Errorf("Overlaps(a, b) = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.b, a); got != tt.want {
				t.Errorf("Overlaps(b, a) = %v, want %v", got, tt.want)
			}
		})
	}
}

// rangePredicates is the range-query form evaluated by the store.
func rangePredicates(existing, cand Interval) bool {
	le := func(x, y time.Time) bool { return !x.After(y) }
	return (le(existing.Start, cand.Start) && existing.End.After(cand.Start)) ||
		(existing.Start.Before(cand.End) && le(cand.End, existing.End)) ||
		(le(cand.Start, existing.Start) && le(existing.End, cand.End))
}

func TestRangePredicatesMatchOverlapLaw(t *testing.T) {
	// Every pair of non-empty intervals on a 15-minute grid over 3 hours.
	var intervals []Interval
	for s := 0; s < 12; s++ {
		for e := s + 1; e <= 12; e++ {
			intervals = append(intervals, Interval{
				Start: base.Add(time.Duration(s) * 15 * time.Minute),
				End:   base.Add(time.Duration(e) * 15 * time.Minute),
			})
		}
	}
	for _, x := range intervals {
		for _, y := range intervals {
			if rangePredicates(x, y) != Overlaps(x, y) {
				t.Fatalf("mismatch for existing=%v..%v candidate=%v..%v", x.Start, x.End, y.Start, y.End)
			}
		}
	}
}

type fakeFinder struct {
	windows []model.Window
	err     error
}

func (f *fakeFinder) FindOverlap(_ context.Context, householdID string, kind model.WindowKind, start, end time.Time, excludeID string) (*model.Window, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.windows {
		w := f.windows[i]
		if w.HouseholdID != householdID || w.Kind != kind || w.ID == excludeID {
			continue
		}
		if Overlaps(Interval{w.StartTime, w.EndTime}, Interval{start, end}) {
			return &w, nil
		}
	}
	return nil, nil
}

func newTestEngine() *Engine {
	return NewEngine(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCheckReportsCreator(t *testing.T) {
	exam := iv(9, 0, 17, 0)
	f := &fakeFinder{windows: []model.Window{{
		ID: "w1", Kind: model.KindQuietTime, HouseholdID: "h1", UserID: "alice-id",
		StartTime: exam.Start, EndTime: exam.End,
		User: &model.UserRef{ID: "alice-id", Username: "alice"},
	}}}

	err := newTestEngine().Check(context.Background(), f, Candidate{
		HouseholdID: "h1", Kind: model.KindQuietTime, Interval: iv(16, 0, 18, 0),
	})

	var oe *OverlapError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want *OverlapError", err)
	}
	if oe.UserID != "alice-id" || oe.Username != "alice" || oe.WindowID != "w1" {
		t.Errorf("overlap = %+v", oe)
	}
}

func TestCheckAllowsTouchingAndOtherKinds(t *testing.T) {
	a := iv(10, 0, 11, 0)
	f := &fakeFinder{windows: []model.Window{{
		ID: "w1", Kind: model.KindGuest, HouseholdID: "h1", StartTime: a.Start, EndTime: a.End,
	}}}
	e := newTestEngine()

	if err := e.Check(context.Background(), f, Candidate{HouseholdID: "h1", Kind: model.KindGuest, Interval: iv(11, 0, 12, 0)}); err != nil {
		t.Errorf("touching window: %v", err)
	}
	if err := e.Check(context.Background(), f, Candidate{HouseholdID: "h1", Kind: model.KindQuietTime, Interval: a}); err != nil {
		t.Errorf("other kind: %v", err)
	}
	if err := e.Check(context.Background(), f, Candidate{HouseholdID: "h1", Kind: model.KindGuest, Interval: a, ExcludeID: "w1"}); err != nil {
		t.Errorf("self exclusion: %v", err)
	}
}

func TestCheckRejectsEmptyInterval(t *testing.T) {
	err := newTestEngine().Check(context.Background(), &fakeFinder{}, Candidate{
		HouseholdID: "h1", Kind: model.KindGuest, Interval: iv(10, 0, 10, 0),
	})
	if err == nil {
		t.Fatal("expected error for empty interval")
	}
}

func TestCheckPropagatesFinderError(t *testing.T) {
	boom := errors.New("db down")
	err := newTestEngine().Check(context.Background(), &fakeFinder{err: boom}, Candidate{
		HouseholdID: "h1", Kind: model.KindGuest, Interval: iv(10, 0, 11, 0),
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}
