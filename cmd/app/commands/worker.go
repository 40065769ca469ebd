package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/app"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/config"
)

// RunWorker starts the pending distribution retry worker alongside the ops
// server (health, readiness and metrics). Blocks until SIGINT/SIGTERM or a
// fatal error, then stops both within DBConnMaxLifetime.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	defer closeContainer(container, logger)

	worker, err := container.PendingWorker()
	if err != nil {
		return fmt.Errorf("failed to initialize pending worker: %w", err)
	}

	opsServer, err := container.OpsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize ops server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runErr := make(chan error, 2)
	go func() {
		if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			runErr <- fmt.Errorf("pending worker error: %w", err)
		}
	}()
	go func() {
		if err := opsServer.Start(ctx); err != nil {
			runErr <- fmt.Errorf("ops server error: %w", err)
		}
	}()

	var errs []error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-runErr:
		logger.Error("worker error, initiating shutdown", slog.Any("error", err))
		errs = append(errs, err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
	defer shutdownCancel()

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("ops server shutdown: %w", err))
	}

	return errors.Join(errs...)
}
