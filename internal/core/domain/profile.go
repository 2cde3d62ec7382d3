package domain

import "time"

// Profile is the public part of a user account.
type Profile struct {
	ID          string    `json:"id"           db:"id"`
	Username    string    `json:"username"     db:"username"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   string    `json:"avatar_url"   db:"avatar_url"`
	UpdatedAt   time.Time `json:"updated_at"   db:"updated_at"`
}
