package models

import "time"

// Alert is a departure notification as recorded in the alert journal.
type Alert struct {
	ID        int64     `json:"id" db:"id"`
	Role      Role      `json:"role" db:"role"`
	Identity  string    `json:"identity" db:"identity"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	FromTier  int       `json:"from_tier" db:"from_tier"`
	ToTier    int       `json:"to_tier" db:"to_tier"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
