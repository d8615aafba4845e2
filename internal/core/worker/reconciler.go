package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/storage"
	"github.com/vietddude/optionvault/internal/metrics"
)

// Applier replays one ledger write. *ledger.Gateway implements it.
type Applier interface {
	ApplyPendingWrite(ctx context.Context, w domain.PendingWrite) error
}

// ReconcilerConfig controls the replay loop.
type ReconcilerConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// Reconciler replays ledger writes whose transactions confirmed but whose
// first write failed. It never touches the chain.
type Reconciler struct {
	cfg     ReconcilerConfig
	queue   storage.PendingWriteQueue
	applier Applier
	logger  *slog.Logger
}

func NewReconciler(cfg ReconcilerConfig, queue storage.PendingWriteQueue, applier Applier) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Reconciler{
		cfg:     cfg,
		queue:   queue,
		applier: applier,
		logger:  slog.Default().With("component", "reconciler"),
	}
}

// Start runs a pass immediately and then every interval until ctx is
// cancelled. Passes never overlap.
func (r *Reconciler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(r.cfg.Interval),
		gocron.NewTask(func() { r.RunOnce(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule reconciler: %w", err)
	}

	sched.Start()
	r.logger.Info("Reconciler started", "interval", r.cfg.Interval, "max_attempts", r.cfg.MaxAttempts)

	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		r.logger.Warn("Scheduler shutdown failed", "error", err)
	}
	return nil
}

// PassResult summarises one reconciliation pass.
type PassResult struct {
	Applied int
	Retried int
	Dropped int
}

// RunOnce replays every queued write once.
func (r *Reconciler) RunOnce(ctx context.Context) PassResult {
	var res PassResult
	writes, err := r.queue.List(ctx)
	if err != nil {
		r.logger.Error("Failed to list pending writes", "error", err)
		return res
	}

	for _, w := range writes {
		if ctx.Err() != nil {
			break
		}
		r.replay(ctx, w, &res)
	}

	if n, err := r.queue.Count(ctx); err == nil {
		metrics.PendingWrites.Set(float64(n))
	}
	if res.Applied+res.Retried+res.Dropped > 0 {
		r.logger.Info("Reconciliation pass finished",
			"applied", res.Applied, "retried", res.Retried, "dropped", res.Dropped)
	}
	return res
}

func (r *Reconciler) replay(ctx context.Context, w *domain.PendingWrite, res *PassResult) {
	log := r.logger.With("id", w.ID, "flow", w.Flow, "tx_hash", w.TxHash)

	err := r.applier.ApplyPendingWrite(ctx, *w)
	if err == nil {
		if err := r.queue.Resolve(ctx, w.ID); err != nil {
			log.Error("Failed to resolve pending write", "error", err)
			return
		}
		log.Info("Ledger write replayed", "attempts", w.Attempts+1)
		res.Applied++
		return
	}

	w.Attempts++
	w.LastError = err.Error()
	if w.Attempts >= r.cfg.MaxAttempts {
		if err := r.queue.Resolve(ctx, w.ID); err != nil {
			log.Error("Failed to drop pending write", "error", err)
			return
		}
		metrics.PendingWritesDropped.Inc()
		log.Error("Giving up on ledger write, manual reconciliation needed",
			"attempts", w.Attempts, "error", err)
		res.Dropped++
		return
	}

	if err := r.queue.Add(ctx, w); err != nil {
		log.Error("Failed to requeue pending write", "error", err)
		return
	}
	log.Warn("Ledger write replay failed", "attempts", w.Attempts, "error", err)
	res.Retried++
}
