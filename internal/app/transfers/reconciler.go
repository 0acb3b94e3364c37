package transfers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ledger/internal/cache"
	"ledger/internal/domain"
	"ledger/internal/repository"
)

const (
	reasonStale        = "stale pending transfer"
	reconcileBatchSize = 100
)

// Reconciler fails transfers left PENDING by a crash or a lost finalization
// write. Balances and SUCCESS commit together, so a transfer that is still
// PENDING long after creation never moved money.
type Reconciler struct {
	uow         repository.UnitOfWork
	cache       cache.TransferCache
	eventsTopic string
	interval    time.Duration
	staleAfter  time.Duration
	logger      *zap.Logger
}

func NewReconciler(
	uow repository.UnitOfWork,
	transferCache cache.TransferCache,
	eventsTopic string,
	interval time.Duration,
	staleAfter time.Duration,
	logger *zap.Logger,
) *Reconciler {
	if transferCache == nil {
		transferCache = cache.NopTransferCache{}
	}
	return &Reconciler{
		uow:         uow,
		cache:       transferCache,
		eventsTopic: eventsTopic,
		interval:    interval,
		staleAfter:  staleAfter,
		logger:      logger,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("Starting transfer reconciler...",
		zap.Duration("interval", r.interval),
		zap.Duration("stale_after", r.staleAfter))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Transfer reconciler stopped.")
			return
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.logger.Error("Failed to reconcile pending transfers", zap.Error(err))
			}
		}
	}
}

// ReconcileOnce fails one batch of stale transfers, one unit of work each, and
// returns how many it finalized. Transfers that moved on concurrently are
// skipped.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-r.staleAfter)

	var stale []domain.Transfer
	err := r.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		stale, err = repos.Transfers.ListStalePending(ctx, cutoff, reconcileBatchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, t := range stale {
		var failed *domain.Transfer
		err := r.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
			var err error
			failed, err = finalizeFailed(ctx, repos, t.ID, reasonStale, r.eventsTopic)
			return err
		})
		switch {
		case err == nil:
			reconciled++
			r.cache.Set(ctx, failed)
			r.logger.Warn("Stale transfer marked FAILED",
				zap.Int64("transfer_id", t.ID),
				zap.Time("created_at", t.CreatedAt))
		case errors.Is(err, domain.ErrInvalidStateTransition), domain.IsRetryable(err):
			r.logger.Debug("Stale transfer settled concurrently, skipping", zap.Int64("transfer_id", t.ID))
		default:
			if ctx.Err() != nil {
				return reconciled, ctx.Err()
			}
			r.logger.Error("Failed to reconcile transfer", zap.Int64("transfer_id", t.ID), zap.Error(err))
		}
	}
	return reconciled, nil
}
