// Package sessions provides storage for refresh-credential records.
package sessions

import (
	"context"
	"time"

	"github.com/avdeyev/authcore/internal/server/models"
)

// Repository is the session store. Sessions are keyed by the one-way hash
// of the refresh token; the plaintext token never reaches storage.
type Repository interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.Session, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
