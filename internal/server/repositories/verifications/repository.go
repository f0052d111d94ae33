// Package verifications provides storage for one-time-code email
// verification challenges.
package verifications

import (
	"context"
	"time"

	"github.com/avdeyev/authcore/internal/server/models"
)

// Repository is the verification-challenge store. CountSince and
// OldestSince serve the resend rate limiter: every resend inserts a row, so
// rows created inside the trailing window are the request history.
type Repository interface {
	Create(ctx context.Context, userID, otpHash string, expiresAt time.Time) (*models.EmailVerification, error)
	SupersedeAllUnverified(ctx context.Context, userID string) error
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
	// OldestSince returns the creation time of the oldest record inside the
	// window, or an apperr.KindNotFound error if there is none.
	OldestSince(ctx context.Context, userID string, since time.Time) (time.Time, error)
	// FindLatestPending returns the newest challenge that is neither
	// verified nor superseded, or an apperr.KindNotFound error.
	FindLatestPending(ctx context.Context, userID string) (*models.EmailVerification, error)
	MarkVerified(ctx context.Context, id string) error
	// IncrementAttempts records a failed confirmation attempt and returns
	// the new attempt count.
	IncrementAttempts(ctx context.Context, id string) (int, error)
}
