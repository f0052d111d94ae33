package models

import "time"

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	// StatusPendingVerification: registered, email not yet confirmed.
	StatusPendingVerification UserStatus = "pending_verification"
	// StatusActive: email confirmed, account usable.
	StatusActive UserStatus = "active"
	// StatusSuspended: blocked by an operator.
	StatusSuspended UserStatus = "suspended"
)

// User is the identity record. Either a password hash or an OAuth
// provider+id pair must be present; email is always required and unique.
type User struct {
	ID            string
	FirstName     string
	LastName      string
	Email         string
	PasswordHash  string // empty for OAuth-only accounts
	OAuthProvider string
	OAuthID       string
	Status        UserStatus
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
