package usecase

import (
	"context"
	"log/slog"
	"time"
)

// PendingWorkerConfig holds pending retry worker configuration.
type PendingWorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// PendingWorker periodically re-sends key versions to members that were
// pending when the local identity distributed them.
type PendingWorker struct {
	config       PendingWorkerConfig
	identity     IdentityKeyService
	pendingRepo  PendingRepository
	distribution DistributionUseCase
	logger       *slog.Logger
}

// NewPendingWorker creates a new PendingWorker.
func NewPendingWorker(
	config PendingWorkerConfig,
	identity IdentityKeyService,
	pendingRepo PendingRepository,
	distribution DistributionUseCase,
	logger *slog.Logger,
) *PendingWorker {
	return &PendingWorker{
		config:       config,
		identity:     identity,
		pendingRepo:  pendingRepo,
		distribution: distribution,
		logger:       logger,
	}
}

// Start runs retry passes every Interval until ctx is done.
func (w *PendingWorker) Start(ctx context.Context) error {
	w.logger.Info("starting pending distribution worker",
		slog.Duration("interval", w.config.Interval),
		slog.Int("batch_size", w.config.BatchSize),
	)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping pending distribution worker")
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				w.logger.Error("failed to process pending distributions", slog.Any("error", err))
			}
		}
	}
}

// ProcessPending runs one retry pass. A failing key version is logged and skipped.
func (w *PendingWorker) ProcessPending(ctx context.Context) error {
	refs, err := w.pendingRepo.ListDistributions(ctx, w.identity.CurrentUserID(), w.config.BatchSize)
	if err != nil {
		return err
	}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := w.distribution.RetryPending(ctx, ref.ConversationID, ref.Version); err != nil {
			w.logger.Error("failed to retry pending distribution",
				slog.String("conversation_id", ref.ConversationID.String()),
				slog.Uint64("key_version", uint64(ref.Version)),
				slog.Any("error", err),
			)
		}
	}

	return nil
}
