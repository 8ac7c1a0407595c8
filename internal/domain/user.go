// Package domain contains core domain types for the VoiceOS application.
package domain

import (
	"time"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DefaultCountryCode is applied when signup omits a country code.
const DefaultCountryCode = "+91"

// User represents a dashboard user identified by email.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Mobile      string    `json:"mobile"`
	CountryCode string    `json:"countryCode"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IsAdmin returns true if the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PhoneNumber returns the user's mobile number prefixed with its country code.
// Returns empty string if no mobile is stored.
func (u *User) PhoneNumber() string {
	if u.Mobile == "" {
		return ""
	}
	return u.CountryCode + u.Mobile
}
