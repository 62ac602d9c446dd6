package model

import "time"

type InviteStatus string

const (
	InvitePending  InviteStatus = "PENDING"
	InviteAccepted InviteStatus = "ACCEPTED"
	InviteRejected InviteStatus = "REJECTED"
)

type Invite struct {
	ID          string       `json:"id"`
	FromID      string       `json:"fromId"`
	ToID        string       `json:"toId"`
	HouseholdID string       `json:"householdId"`
	Status      InviteStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// PendingInvite is an invite as shown to its recipient.
type PendingInvite struct {
	Invite
	HouseholdName string `json:"householdName"`
	FromUsername  string `json:"fromUsername"`
}
