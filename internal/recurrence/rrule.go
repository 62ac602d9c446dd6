// Package recurrence parses the RRULE subset used for recurring tasks and
// steps a due date forward to its next occurrence.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Freq int

const (
	Daily Freq = iota
	Weekly
	Monthly
	Yearly
)

var freqNames = map[Freq]string{
	Daily:   "DAILY",
	Weekly:  "WEEKLY",
	Monthly: "MONTHLY",
	Yearly:  "YEARLY",
}

// Plain words accepted in place of a full rule.
var shorthand = map[string]Freq{
	"daily":   Daily,
	"weekly":  Weekly,
	"monthly": Monthly,
	"yearly":  Yearly,
}

var weekdays = []string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

type Rule struct {
	Freq     Freq
	Interval int            // >= 1
	ByDay    []time.Weekday // WEEKLY only; empty means the anchor's weekday
}

// Parse accepts "daily", "weekly", "monthly", "yearly" or an RRULE such as
// "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH".
func Parse(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}
	if f, ok := shorthand[strings.ToLower(s)]; ok {
		return Rule{Freq: f, Interval: 1}, nil
	}

	r := Rule{Interval: 1}
	var hasFreq bool
	for _, part := range strings.Split(strings.ToUpper(s), ";") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, fmt.Errorf("invalid rule part: %q", part)
		}
		switch key {
		case "FREQ":
			f, err := parseFreq(val)
			if err != nil {
				return Rule{}, err
			}
			r.Freq = f
			hasFreq = true
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid interval: %q", val)
			}
			r.Interval = n
		case "BYDAY":
			for _, d := range strings.Split(val, ",") {
				wd, err := parseWeekday(strings.TrimSpace(d))
				if err != nil {
					return Rule{}, err
				}
				r.ByDay = append(r.ByDay, wd)
			}
		default:
			return Rule{}, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("FREQ is required")
	}
	if len(r.ByDay) > 0 && r.Freq != Weekly {
		return Rule{}, fmt.Errorf("BYDAY requires FREQ=WEEKLY")
	}
	return r, nil
}

func parseFreq(val string) (Freq, error) {
	for f, name := range freqNames {
		if name == val {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown frequency: %q", val)
}

func parseWeekday(val string) (time.Weekday, error) {
	for i, name := range weekdays {
		if name == val {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown day: %q", val)
}

// String renders the rule in canonical RRULE form.
func (r Rule) String() string {
	parts := []string{"FREQ=" + freqNames[r.Freq]}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		days := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			days[i] = weekdays[d]
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	return strings.Join(parts, ";")
}

// Describe returns a short human-readable summary.
func (r Rule) Describe() string {
	unit := map[Freq]string{Daily: "day", Weekly: "week", Monthly: "month", Yearly: "year"}[r.Freq]
	var s string
	switch r.Interval {
	case 1:
		s = "Every " + unit
	default:
		s = fmt.Sprintf("Every %d %ss", r.Interval, unit)
	}
	if len(r.ByDay) > 0 {
		names := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			names[i] = d.String()[:3]
		}
		s += " on " + strings.Join(names, ", ")
	}
	return s
}
