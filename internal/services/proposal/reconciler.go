package proposal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type ReconcileStore interface {
	RejectStalePending(ctx context.Context) (int64, error)
	LinkOrphanProposals(ctx context.Context, batchSize int) (int64, error)
}

// Reconciler repairs the effects of writes that were cut short: pending
// proposals left on projects that are no longer open, and proposals never
// appended to their project's ProposalIDs.
type Reconciler struct {
	store     ReconcileStore
	log       *zap.Logger
	BatchSize int
}

type Report struct {
	Rejected int64
	Linked   int64
}

func NewReconciler(store ReconcileStore, log *zap.Logger) *Reconciler {
	return &Reconciler{store: store, log: log, BatchSize: 100}
}

func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	var rep Report

	rejected, err := r.store.RejectStalePending(ctx)
	if err != nil {
		return rep, err
	}
	rep.Rejected = rejected

	linked, err := r.store.LinkOrphanProposals(ctx, r.BatchSize)
	if err != nil {
		return rep, err
	}
	rep.Linked = linked

	if rep.Rejected > 0 || rep.Linked > 0 {
		r.log.Info("reconciled proposals",
			zap.Int64("rejected", rep.Rejected),
			zap.Int64("linked", rep.Linked),
		)
	}
	return rep, nil
}

// Run reconciles once immediately and then every interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	r.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.log.Error("reconcile proposals", zap.Error(err))
	}
}
