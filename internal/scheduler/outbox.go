package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/notify"
	"github.com/hamed0406/tablealert/internal/repo"
)

// Executor runs one side effect.
type Executor interface {
	Execute(ctx context.Context, e domain.SideEffect) error
}

type OutboxConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	BatchSize    int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Jitter       float64
}

func (c OutboxConfig) withDefaults() OutboxConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 8
	}
	if c.BatchSize < 1 {
		c.BatchSize = 50
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 10 * time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = 30 * time.Minute
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = 0
	}
	return c
}

// PassStats counts what one pass did.
type PassStats struct {
	Done    int
	Retried int
	Failed  int
}

// OutboxWorker works off persisted side effects. Failures are retried with
// exponential backoff; after MaxAttempts the record is marked failed and ops
// are told once.
type OutboxWorker struct {
	Logger   *zap.Logger
	Store    repo.OutboxStore
	Exec     Executor
	Notifier notify.Notifier
	Now      func() time.Time

	cfg OutboxConfig
}

func NewOutboxWorker(logger *zap.Logger, store repo.OutboxStore, exec Executor, notifier notify.Notifier, cfg OutboxConfig) *OutboxWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &OutboxWorker{
		Logger:   logger,
		Store:    store,
		Exec:     exec,
		Notifier: notifier,
		Now:      time.Now,
		cfg:      cfg.withDefaults(),
	}
}

// Run does an immediate pass, then one per tick, until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	t := time.NewTicker(w.cfg.PollInterval)
	defer t.Stop()

	w.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("outbox_worker_stopped")
			return ctx.Err()
		case <-t.C:
			w.pass(ctx)
		}
	}
}

func (w *OutboxWorker) pass(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.Logger.Warn("outbox_pass_error", zap.Error(err))
	}
}

// RunOnce executes every side effect due now, up to BatchSize.
func (w *OutboxWorker) RunOnce(ctx context.Context) (PassStats, error) {
	var st PassStats
	due, err := w.Store.Due(ctx, w.Now().UTC(), w.cfg.BatchSize)
	if err != nil {
		return st, fmt.Errorf("load due side effects: %w", err)
	}

	for _, e := range due {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		log := w.Logger.With(
			zap.String("side_effect_id", e.ID),
			zap.String("kind", string(e.Kind)),
			zap.String("email", e.Email),
		)
		execErr := w.Exec.Execute(ctx, e)
		now := w.Now().UTC()
		attempts := e.Attempts + 1

		switch {
		case execErr == nil:
			if err := w.Store.MarkDone(ctx, e.ID, now); err != nil {
				log.Error("outbox_mark_error", zap.Error(err))
				continue
			}
			st.Done++
			log.Info("side_effect_done", zap.Int("attempts", attempts))

		case attempts >= w.cfg.MaxAttempts:
			if err := w.Store.MarkFailed(ctx, e.ID, attempts, now, execErr.Error()); err != nil {
				log.Error("outbox_mark_error", zap.Error(err))
				continue
			}
			st.Failed++
			log.Error("side_effect_failed", zap.Int("attempts", attempts), zap.Error(execErr))
			text := fmt.Sprintf("Kind: %s\nEmail: %s\nEvent: %s\nAttempts: %d\nLast error: %s",
				e.Kind, e.Email, e.EventID, attempts, execErr)
			if err := w.Notifier.Send(ctx, "Side effect failed", text); err != nil {
				log.Warn("ops_notify_failed", zap.Error(err))
			}

		default:
			next := now.Add(w.delay(attempts))
			if err := w.Store.MarkRetry(ctx, e.ID, attempts, next, execErr.Error()); err != nil {
				log.Error("outbox_mark_error", zap.Error(err))
				continue
			}
			st.Retried++
			log.Warn("side_effect_retry", zap.Int("attempts", attempts), zap.Time("next_run_at", next), zap.Error(execErr))
		}
	}
	return st, nil
}

// delay is the wait after the given number of failed attempts.
func (w *OutboxWorker) delay(attempts int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     w.cfg.BaseDelay,
		RandomizationFactor: w.cfg.Jitter,
		Multiplier:          2,
		MaxInterval:         w.cfg.MaxDelay,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}
