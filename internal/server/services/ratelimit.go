// Package services contains the server-side business logic: the resend
// rate limiter, the verification-code resend workflow, and the user service
// that mints and rotates session credentials.
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/avdeyev/authcore/internal/apperr"
	"github.com/avdeyev/authcore/internal/server/config"
	"github.com/avdeyev/authcore/internal/server/repositories/repomanager"
)

// RateLimitResult reports the sliding-window decision for one subject.
type RateLimitResult struct {
	IsLimited    bool
	RequestCount int
	// RetryAfter is the moment the oldest in-window request leaves the
	// window. Nil when not limited, or when the window emptied between the
	// count and the oldest-row read.
	RetryAfter *time.Time
}

// ResendRateLimiter caps how often a user may request a new verification
// code: at most limit requests per trailing window.
//
// This is read-then-decide with no locking. Two concurrent requests at the
// boundary can both observe count < limit and both proceed; the
// over-admission is bounded by request latency and accepted for this
// low-value action. Callers needing exact admission control must add a
// transactional guard.
type ResendRateLimiter struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewResendRateLimiter constructs a limiter from the validated config.
func NewResendRateLimiter(db *sql.DB, repos repomanager.RepositoryManager, cfg *config.Config) *ResendRateLimiter {
	return &ResendRateLimiter{
		db:     db,
		repos:  repos,
		limit:  cfg.OTPResendLimit,
		window: cfg.OTPResendWindow,
		now:    time.Now,
	}
}

// CheckLimit counts the subject's requests inside [now-window, now]. A
// count reaching the limit is throttled (the boundary is inclusive); below
// it the call passes and reports the count. Reads are non-transactional.
func (l *ResendRateLimiter) CheckLimit(ctx context.Context, userID string) (*RateLimitResult, error) {
	now := l.now()
	since := now.Add(-l.window)

	repo := l.repos.Verifications(l.db)

	count, err := repo.CountSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	if count < l.limit {
		return &RateLimitResult{RequestCount: count}, nil
	}

	oldest, err := repo.OldestSince(ctx, userID, since)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			// Window emptied between the two reads. Still limited per the
			// count, but no retry hint is computable.
			return &RateLimitResult{IsLimited: true, RequestCount: count}, nil
		}
		return nil, err
	}

	retryAfter := oldest.Add(l.window)
	return &RateLimitResult{IsLimited: true, RequestCount: count, RetryAfter: &retryAfter}, nil
}
