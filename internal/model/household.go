package model

import "time"

type Household struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	IsPrivate bool      `json:"isPrivate"`
	OwnerID   string    `json:"ownerId"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type HouseholdDetails struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	IsPrivate bool      `json:"isPrivate"`
	OwnerID   string    `json:"ownerId"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// HouseholdListing is a directory entry. Code is blank for private
// households the viewer does not belong to.
type HouseholdListing struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code,omitempty"`
	IsPrivate    bool      `json:"isPrivate"`
	OwnerID      string    `json:"ownerId"`
	Members      []UserRef `json:"members"`
	IsUserMember bool      `json:"isUserMember"`
	MemberCount  int       `json:"memberCount"`
}

type HouseholdDirectory struct {
	CurrentHouseholdID *string            `json:"currentHouseholdId"`
	Households         []HouseholdListing `json:"households"`
}
