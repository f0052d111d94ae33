package models

import "time"

// EmailVerification is a one-time-code challenge tied to a user. Only a
// one-way hash of the code is stored. At most one unverified, unexpired,
// non-superseded record is actionable per user; issuing a new code marks
// all prior unverified records superseded.
type EmailVerification struct {
	ID         string
	UserID     string
	OTPHash    string
	ExpiresAt  time.Time
	Attempts   int
	Verified   bool
	Superseded bool
	CreatedAt  time.Time
}
