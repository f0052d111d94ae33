package verifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avdeyev/authcore/internal/apperr"
	"github.com/avdeyev/authcore/internal/dbx"
	"github.com/avdeyev/authcore/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID, otpHash string, expiresAt time.Time) (*models.EmailVerification, error) {
	query := `
		INSERT INTO email_verifications (user_id, otp_hash, expires_at, attempts)
		VALUES ($1, $2, $3, 0)
		RETURNING id, created_at
	`
	v := &models.EmailVerification{
		UserID:    userID,
		OTPHash:   otpHash,
		ExpiresAt: expiresAt,
	}
	if err := r.db.QueryRowContext(ctx, query, userID, otpHash, expiresAt).Scan(&v.ID, &v.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) SupersedeAllUnverified(ctx context.Context, userID string) error {
	query := `
		UPDATE email_verifications
		SET superseded = TRUE
		WHERE user_id = $1 AND verified = FALSE AND superseded = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindLatestPending(ctx context.Context, userID string) (*models.EmailVerification, error) {
	query := `
		SELECT id, user_id, otp_hash, expires_at, attempts, verified, superseded, created_at
		FROM email_verifications
		WHERE user_id = $1 AND verified = FALSE AND superseded = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`
	v := &models.EmailVerification{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&v.ID, &v.UserID, &v.OTPHash, &v.ExpiresAt, &v.Attempts, &v.Verified, &v.Superseded, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "no pending verification")
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE email_verifications SET verified = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE email_verifications SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`
	var attempts int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

func (r *PostgresRepository) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM email_verifications
		WHERE user_id = $1 AND created_at >= $2
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) OldestSince(ctx context.Context, userID string, since time.Time) (time.Time, error) {
	query := `
		SELECT created_at FROM email_verifications
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
		LIMIT 1
	`
	var createdAt time.Time
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, apperr.New(apperr.KindNotFound, "no verification requests in window")
		}
		return time.Time{}, fmt.Errorf("db error: %w", err)
	}
	return createdAt, nil
}
