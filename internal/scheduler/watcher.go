package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/probe"
)

// Watcher keeps a recent readiness snapshot of the downstream
// dependencies so /readyz never waits on them.
type Watcher struct {
	Logger   *zap.Logger
	Checks   *probe.MultiChecker
	Interval time.Duration
	Timeout  time.Duration

	mu      sync.RWMutex
	last    []probe.CheckResult
	checked time.Time
}

func NewWatcher(logger *zap.Logger, checks *probe.MultiChecker, interval, timeout time.Duration) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval < 0 {
		interval = 0
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Watcher{Logger: logger, Checks: checks, Interval: interval, Timeout: timeout}
}

// Run does an immediate pass, then one per tick. Interval 0 disables it.
func (w *Watcher) Run(ctx context.Context) {
	if w.Interval == 0 {
		w.Logger.Info("watcher_disabled")
		return
	}
	t := time.NewTicker(w.Interval)
	defer t.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("watcher_stopped")
			return
		case <-t.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *Watcher) RunOnce(ctx context.Context) []probe.CheckResult {
	cctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()
	res := w.Checks.Run(cctx)

	w.mu.Lock()
	prev := w.last
	w.last, w.checked = res, time.Now().UTC()
	w.mu.Unlock()

	for i, r := range res {
		wasUp := i < len(prev) && prev[i].Success
		switch {
		case !r.Success && (prev == nil || wasUp):
			w.Logger.Warn("dependency_down", zap.String("name", r.Name), zap.Int("status", r.StatusCode), zap.String("reason", r.Message))
		case r.Success && prev != nil && !wasUp:
			w.Logger.Info("dependency_recovered", zap.String("name", r.Name), zap.Float64("latency_ms", r.LatencyMS))
		default:
			w.Logger.Debug("dependency_checked", zap.String("name", r.Name), zap.Bool("up", r.Success), zap.Float64("latency_ms", r.LatencyMS))
		}
	}
	return res
}

// Snapshot returns the latest results and when they were taken. ok is false
// before the first pass.
func (w *Watcher) Snapshot() (res []probe.CheckResult, at time.Time, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last == nil {
		return nil, time.Time{}, false
	}
	return append([]probe.CheckResult(nil), w.last...), w.checked, true
}
