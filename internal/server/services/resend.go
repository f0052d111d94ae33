package services

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/avdeyev/authcore/internal/apperr"
	"github.com/avdeyev/authcore/internal/dbx"
	"github.com/avdeyev/authcore/internal/logging"
	"github.com/avdeyev/authcore/internal/server/auth"
	"github.com/avdeyev/authcore/internal/server/config"
	"github.com/avdeyev/authcore/internal/server/models"
	"github.com/avdeyev/authcore/internal/server/repositories/repomanager"
)

// defaultRetryAfterSeconds is reported when the limiter could not compute a
// retry moment.
const defaultRetryAfterSeconds = 300

// ResendResult acknowledges a successful resend. The code itself is never
// part of the response.
type ResendResult struct {
	Message string `json:"message"`
	Email   string `json:"email"`
	UserID  string `json:"userId"`
}

// ResendService implements the "resend verification code" workflow.
type ResendService struct {
	db            *sql.DB
	repos         repomanager.RepositoryManager
	limiter       *ResendRateLimiter
	mailer        Mailer
	log           logging.Logger
	otpExpiration time.Duration
	now           func() time.Time
}

// NewResendService constructs the workflow from its collaborators and the
// validated config.
func NewResendService(db *sql.DB, repos repomanager.RepositoryManager, limiter *ResendRateLimiter, mailer Mailer, log logging.Logger, cfg *config.Config) *ResendService {
	return &ResendService{
		db:            db,
		repos:         repos,
		limiter:       limiter,
		mailer:        mailer,
		log:           log,
		otpExpiration: cfg.OTPExpiration,
		now:           time.Now,
	}
}

// ResendVerificationCode issues a fresh one-time code for the user behind
// email. Preconditions are checked in order: existence, then status, then
// rate limit. Nothing is mutated until all of them pass. The supersede and
// insert run as one atomic unit, so a concurrent reader never observes two
// actionable pending challenges.
func (s *ResendService) ResendVerificationCode(ctx context.Context, email string) (*ResendResult, error) {
	user, err := s.repos.Users(s.db).FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user.Status != models.StatusPendingVerification {
		return nil, apperr.New(apperr.KindBadRequest, "user is already verified")
	}

	limit, err := s.limiter.CheckLimit(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if limit.IsLimited {
		retryAfter := defaultRetryAfterSeconds
		if limit.RetryAfter != nil {
			retryAfter = int(math.Ceil(limit.RetryAfter.Sub(s.now()).Seconds()))
		}
		s.log.Warn(ctx, "verification code resend throttled",
			"user_id", user.ID, "request_count", limit.RequestCount, "retry_after", retryAfter)
		return nil, apperr.TooManyRequests("too many verification code requests, please try again later", retryAfter)
	}

	var code string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Verifications(tx)

		if err := repo.SupersedeAllUnverified(ctx, user.ID); err != nil {
			return err
		}

		code, err = auth.GenerateCode()
		if err != nil {
			return err
		}

		_, err = repo.Create(ctx, user.ID, auth.HashCode(code), s.now().Add(s.otpExpiration))
		return err
	})
	if err != nil {
		return nil, err
	}

	// Delivery is fire-and-forget: the committed code stays valid even if
	// the email never leaves.
	if err := s.mailer.SendVerificationEmail(ctx, user.Email, code); err != nil {
		s.log.Error(ctx, "verification email delivery failed", "user_id", user.ID, "error", err.Error())
	}

	return &ResendResult{
		Message: "Verification code resent",
		Email:   user.Email,
		UserID:  user.ID,
	}, nil
}
