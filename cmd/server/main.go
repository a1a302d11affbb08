// Package main implements the entry point for the gymbuddies server, which
// pairs users for shared workout sessions from their weekly availability.
package main

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

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/gymbuddies/gymbuddies/internal/config"
	"github.com/gymbuddies/gymbuddies/internal/platform/logger"
	"github.com/gymbuddies/gymbuddies/internal/platform/postgres"
	"github.com/gymbuddies/gymbuddies/internal/service/matchmaker"
	"github.com/gymbuddies/gymbuddies/internal/service/pairing"
	"github.com/gymbuddies/gymbuddies/internal/service/schedule"
	"github.com/gymbuddies/gymbuddies/internal/service/user"
	"github.com/gymbuddies/gymbuddies/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)
	log.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel))

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, log); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	app, err := buildApplication(db, cfg, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}

// application holds the wired services the router exposes.
type application struct {
	db         *sql.DB
	logger     *slog.Logger
	pairing    pairing.Service
	matchmaker matchmaker.Service
	schedules  schedule.Service
	users      user.Service
}

func buildApplication(db *sql.DB, cfg *config.Config, log *slog.Logger) (*application, error) {
	userStore := postgres.NewPostgresUserStore(db)
	requestStore := postgres.NewPostgresRequestStore(db)
	scheduleStore := postgres.NewPostgresScheduleStore(db)

	runner := store.NewRunner(db, store.RetryConfig{
		MaxAttempts: cfg.Database.MaxRetries,
		BaseDelay:   time.Duration(cfg.Database.RetryBaseDelayMS) * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}, postgres.IsSerializationFailure, log)

	pairingSvc, err := pairing.NewService(userStore, requestStore, scheduleStore, runner, log)
	if err != nil {
		return nil, err
	}
	matchmakerSvc, err := matchmaker.NewService(userStore, requestStore, cfg.Matchmaker, log)
	if err != nil {
		return nil, err
	}
	scheduleSvc, err := schedule.NewService(scheduleStore, runner, log)
	if err != nil {
		return nil, err
	}
	userSvc, err := user.NewService(userStore, pairingSvc, runner, log)
	if err != nil {
		return nil, err
	}

	return &application{
		db:         db,
		logger:     log,
		pairing:    pairingSvc,
		matchmaker: matchmakerSvc,
		schedules:  scheduleSvc,
		users:      userSvc,
	}, nil
}
