package services

import (
	"context"
	"database/sql"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/avdeyev/authcore/internal/apperr"
	"github.com/avdeyev/authcore/internal/dbx"
	"github.com/avdeyev/authcore/internal/logging"
	"github.com/avdeyev/authcore/internal/server/auth"
	"github.com/avdeyev/authcore/internal/server/config"
	"github.com/avdeyev/authcore/internal/server/models"
	"github.com/avdeyev/authcore/internal/server/repositories/repomanager"
)

const appleProvider = "apple"

// maxOTPAttempts caps failed confirmations per challenge; after that the
// user must request a new code.
const maxOTPAttempts = 5

// IdentityVerifier validates a third-party identity token and returns the
// normalized identity it asserts.
type IdentityVerifier interface {
	VerifyIdentityToken(ctx context.Context, idToken string) (*auth.IdentityInfo, error)
}

// TokenPair bundles a short-lived access token and a long-lived refresh
// token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is returned by the sign-in flows.
type AuthResult struct {
	TokenPair
	User *models.User
}

// UserService handles authentication flows: password login, Apple sign-in
// with on-the-fly provisioning, and refresh-token rotation.
type UserService struct {
	db              *sql.DB
	repos           repomanager.RepositoryManager
	access          *auth.TokenCodec
	refresh         *auth.TokenCodec
	apple           IdentityVerifier
	refreshValidity time.Duration
	log             logging.Logger
	now             func() time.Time
}

// NewUserService constructs a UserService from its collaborators and the
// validated config.
func NewUserService(db *sql.DB, repos repomanager.RepositoryManager, access, refresh *auth.TokenCodec, apple IdentityVerifier, log logging.Logger, cfg *config.Config) *UserService {
	return &UserService{
		db:              db,
		repos:           repos,
		access:          access,
		refresh:         refresh,
		apple:           apple,
		refreshValidity: cfg.RefreshExpiration,
		log:             log,
		now:             time.Now,
	}
}

// Login verifies an email/password pair and mints a token pair. Lookup
// misses and password mismatches report the same error, so the endpoint
// does not leak which emails exist.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	badCredentials := apperr.New(apperr.KindBadRequest, "invalid email or password")

	user, err := s.repos.Users(s.db).FindByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, badCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		return nil, badCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, badCredentials
	}

	switch user.Status {
	case models.StatusPendingVerification:
		return nil, apperr.New(apperr.KindBadRequest, "email is not verified")
	case models.StatusSuspended:
		return nil, apperr.New(apperr.KindBadRequest, "account is suspended")
	}

	return s.finishSignIn(ctx, user)
}

// LoginWithApple verifies an Apple identity token, provisions the user on
// first sign-in, and mints a token pair. firstName/lastName carry the
// out-of-band profile payload Apple supplies only on first authorization;
// they are merged into the verified identity before provisioning.
func (s *UserService) LoginWithApple(ctx context.Context, idToken, firstName, lastName string) (*AuthResult, error) {
	info, err := s.apple.VerifyIdentityToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if firstName != "" {
		info.FirstName = firstName
	}
	if lastName != "" {
		info.LastName = lastName
	}

	user, err := s.provisionAppleUser(ctx, info)
	if err != nil {
		return nil, err
	}

	switch user.Status {
	case models.StatusSuspended:
		return nil, apperr.New(apperr.KindBadRequest, "account is suspended")
	}

	return s.finishSignIn(ctx, user)
}

// VerifyEmail confirms a pending account with a one-time code and signs
// the user in. Wrong codes burn an attempt; expired or exhausted
// challenges require a fresh resend.
func (s *UserService) VerifyEmail(ctx context.Context, email, code string) (*AuthResult, error) {
	user, err := s.repos.Users(s.db).FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.Status != models.StatusPendingVerification {
		return nil, apperr.New(apperr.KindBadRequest, "user is already verified")
	}

	verifications := s.repos.Verifications(s.db)
	challenge, err := verifications.FindLatestPending(ctx, user.ID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.New(apperr.KindBadRequest, "no pending verification code, request a new one")
		}
		return nil, err
	}
	if challenge.ExpiresAt.Before(s.now()) {
		return nil, apperr.New(apperr.KindBadRequest, "verification code has expired, request a new one")
	}
	if challenge.Attempts >= maxOTPAttempts {
		return nil, apperr.New(apperr.KindBadRequest, "too many incorrect attempts, request a new code")
	}
	if !auth.VerifyCode(code, challenge.OTPHash) {
		if _, err := verifications.IncrementAttempts(ctx, challenge.ID); err != nil {
			s.log.Error(ctx, "recording failed verification attempt", "verification_id", challenge.ID, "error", err.Error())
		}
		return nil, apperr.New(apperr.KindBadRequest, "invalid verification code")
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Verifications(tx).MarkVerified(ctx, challenge.ID); err != nil {
			return err
		}
		if err := s.repos.Users(tx).UpdateStatus(ctx, user.ID, models.StatusActive); err != nil {
			return err
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, tx, user.ID, user.Email)
		if genErr != nil {
			return genErr
		}
		return s.repos.Users(tx).UpdateLastLogin(ctx, user.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	user.Status = models.StatusActive
	s.log.Info(ctx, "email verified", "user_id", user.ID)
	return &AuthResult{TokenPair: *pair, User: user}, nil
}

// RefreshTokens validates a refresh token, rotates the backing session
// transactionally, and returns a fresh pair. A token that verifies but has
// no live session (revoked, already rotated) reports KindInvalidToken.
func (s *UserService) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.refresh.Verify(refreshToken)
	if err != nil {
		return nil, err
	}

	oldHash := auth.HashToken(refreshToken)
	session, err := s.repos.Sessions(s.db).FindByTokenHash(ctx, oldHash)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.New(apperr.KindInvalidToken, "refresh token has been revoked")
		}
		return nil, err
	}
	if session.ExpiresAt.Before(s.now()) {
		return nil, apperr.New(apperr.KindTokenExpired, "refresh session has expired")
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Sessions(tx)
		if err := repo.DeleteByTokenHash(ctx, oldHash); err != nil {
			return err
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, tx, claims.UserID, claims.Email)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// GetUser returns the user behind an authenticated id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repos.Users(s.db).FindByID(ctx, id)
}

// Logout revokes the session behind the given refresh token. Unknown
// tokens are a no-op.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	return s.repos.Sessions(s.db).DeleteByTokenHash(ctx, auth.HashToken(refreshToken))
}

// provisionAppleUser finds or creates the account asserted by a verified
// Apple identity. Match order: provider-scoped id first, then email (an
// existing password account signing in with Apple for the first time gets
// the provider linked). New accounts are created active, since the provider has
// already verified the email.
func (s *UserService) provisionAppleUser(ctx context.Context, info *auth.IdentityInfo) (*models.User, error) {
	repo := s.repos.Users(s.db)

	user, err := repo.FindByProvider(ctx, appleProvider, info.ExternalID)
	if err == nil {
		return user, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	user, err = repo.FindByEmail(ctx, info.Email)
	if err == nil {
		if err := repo.LinkProvider(ctx, user.ID, appleProvider, info.ExternalID); err != nil {
			return nil, err
		}
		user.OAuthProvider = appleProvider
		user.OAuthID = info.ExternalID
		return user, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	created, err := repo.Create(ctx, &models.User{
		FirstName:     info.FirstName,
		LastName:      info.LastName,
		Email:         info.Email,
		OAuthProvider: appleProvider,
		OAuthID:       info.ExternalID,
		Status:        models.StatusActive,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "provisioned user from identity provider", "user_id", created.ID, "provider", appleProvider)
	return created, nil
}

// finishSignIn mints the token pair, persists the session, and bumps the
// last-login timestamp.
func (s *UserService) finishSignIn(ctx context.Context, user *models.User) (*AuthResult, error) {
	var pair *TokenPair
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, tx, user.ID, user.Email)
		if genErr != nil {
			return genErr
		}
		return s.repos.Users(tx).UpdateLastLogin(ctx, user.ID, s.now())
	})
	if err != nil {
		return nil, err
	}
	return &AuthResult{TokenPair: *pair, User: user}, nil
}

// generateTokenPair issues both tokens and stores the refresh session
// under its one-way hash.
func (s *UserService) generateTokenPair(ctx context.Context, tx dbx.DBTX, userID, email string) (*TokenPair, error) {
	accessToken, err := s.access.Issue(userID, email)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.refresh.Issue(userID, email)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.refreshValidity)
	if _, err := s.repos.Sessions(tx).Create(ctx, userID, auth.HashToken(refreshToken), expiresAt); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
