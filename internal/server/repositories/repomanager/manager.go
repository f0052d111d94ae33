// Package repomanager bundles construction of the per-entity repositories.
// Repositories are created bound to a DBTX, so the same manager serves both
// plain reads (bound to *sql.DB) and transactional units of work (bound to
// the *sql.Tx a dbx.WithTx callback receives).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/avdeyev/authcore/internal/dbx"
	"github.com/avdeyev/authcore/internal/server/repositories/sessions"
	"github.com/avdeyev/authcore/internal/server/repositories/users"
	"github.com/avdeyev/authcore/internal/server/repositories/verifications"
)

// RepositoryManager hands out repositories bound to the given DBTX.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Verifications(db dbx.DBTX) verifications.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
