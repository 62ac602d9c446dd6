package model

import "time"

type WindowKind string

const (
	KindGuest     WindowKind = "guest"
	KindQuietTime WindowKind = "quiet_time"
)

func (k WindowKind) Valid() bool {
	return k == KindGuest || k == KindQuietTime
}

type QuietCategory string

const (
	CategoryExam  QuietCategory = "exam"
	CategoryStudy QuietCategory = "study"
	CategoryQuiet QuietCategory = "quiet"
)

func (c QuietCategory) Valid() bool {
	switch c {
	case CategoryExam, CategoryStudy, CategoryQuiet:
		return true
	}
	return false
}

// Window is a guest announcement or a quiet-time block. Only the payload
// fields belonging to its Kind are populated.
type Window struct {
	ID          string        `json:"id"`
	Kind        WindowKind    `json:"kind"`
	HouseholdID string        `json:"householdId"`
	UserID      string        `json:"userId"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	GuestCount  int           `json:"guestCount,omitempty"`
	Title       string        `json:"title,omitempty"`
	Category    QuietCategory `json:"category,omitempty"`
	Description string        `json:"description"`
	User        *UserRef      `json:"user,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}
