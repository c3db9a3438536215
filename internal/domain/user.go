package domain

import "time"

// User represents an authenticated account within the platform.
type User struct {
	ID        string
	Email     string
	Locale    string
	Credits   int
	CreatedAt time.Time
	UpdatedAt time.Time
}
