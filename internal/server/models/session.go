package models

import "time"

// Session is a refresh-credential record. Only a one-way hash of the
// refresh token is stored server-side.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	ExpiresAt        time.Time
	CreatedAt        time.Time
	LastUsedAt       time.Time
}
