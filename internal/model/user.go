package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	AvatarURL    string    `json:"avatarUrl"`
	HouseholdID  *string   `json:"householdId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Member is the public roster entry for a household member.
type Member struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
}

// UserRef identifies a user by display name only.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
