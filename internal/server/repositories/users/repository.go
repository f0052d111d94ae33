// Package users provides storage for user identity records.
package users

import (
	"context"
	"time"

	"github.com/avdeyev/authcore/internal/server/models"
)

// Repository is the user store consumed by the auth services. Lookups for
// absent rows return an apperr.KindNotFound error.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByProvider(ctx context.Context, provider, oauthID string) (*models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	LinkProvider(ctx context.Context, id, provider, oauthID string) error
}
