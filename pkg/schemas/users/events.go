// Package users defines the user_events family.
package users

import "time"

const (
	Exchange = "user_events"

	EventRegistered = "user.registered"
	EventLoggedIn   = "user.logged_in"
)

type RegisteredData struct {
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	RegisteredAt time.Time `json:"registered_at"`
}

type LoggedInData struct {
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	LoggedInAt time.Time `json:"logged_in_at"`
}
