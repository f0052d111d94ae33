// Package server initializes and runs the authentication server. It opens
// the database, applies migrations, wires the services, and serves the
// HTTP API until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avdeyev/authcore/internal/logging"
	"github.com/avdeyev/authcore/internal/server/auth"
	"github.com/avdeyev/authcore/internal/server/config"
	authhttp "github.com/avdeyev/authcore/internal/server/http"
	"github.com/avdeyev/authcore/internal/server/repositories/repomanager"
	"github.com/avdeyev/authcore/internal/server/services"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = time.Hour
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	repos  repomanager.RepositoryManager
	server *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := repomanager.OpenDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	accessCodec := auth.NewTokenCodec(cfg.AccessSecret, cfg.AccessExpiration)
	refreshCodec := auth.NewTokenCodec(cfg.RefreshSecret, cfg.RefreshExpiration)

	appleVerifier, err := auth.NewAppleVerifier(ctx, cfg.AppleClientID, logger)
	if err != nil {
		return nil, err
	}

	limiter := services.NewResendRateLimiter(db, repos, cfg)
	mailer := services.NewLogMailer(logger)
	resendService := services.NewResendService(db, repos, limiter, mailer, logger, cfg)
	userService := services.NewUserService(db, repos, accessCodec, refreshCodec, appleVerifier, logger, cfg)

	handler := authhttp.NewAuthHandler(userService, resendService, logger)
	router := authhttp.NewRouter(handler, accessCodec, logger)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		repos:  repos,
		server: &http.Server{Addr: cfg.HTTPAddr, Handler: router},
	}, nil
}

// cleanupSessions periodically purges expired refresh sessions.
func (app *App) cleanupSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.repos.Sessions(app.db).DeleteExpired(ctx)
			if err != nil {
				app.logger.Error(ctx, "session cleanup failed", "error", err.Error())
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "purged expired sessions", "count", n)
			}
		}
	}
}

// Run serves the HTTP API until ctx is cancelled or a termination signal
// arrives, then shuts down gracefully.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go app.cleanupSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "starting http server", "addr", app.config.HTTPAddr)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return app.db.Close()
}
