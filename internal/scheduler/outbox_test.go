package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/repo/memory"
)

type scriptedExec struct {
	mu    sync.Mutex
	fails map[string]int // remaining failures per id; -1 fails forever
	calls map[string]int
}

func newExec() *scriptedExec {
	return &scriptedExec{fails: map[string]int{}, calls: map[string]int{}}
}

func (s *scriptedExec) Execute(_ context.Context, e domain.SideEffect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[e.ID]++
	switch n := s.fails[e.ID]; {
	case n < 0:
		return errors.New("alerts api down")
	case n > 0:
		s.fails[e.ID] = n - 1
		return errors.New("transient")
	}
	return nil
}

type countingNotifier struct {
	mu     sync.Mutex
	titles []string
	texts  []string
}

func (c *countingNotifier) Send(_ context.Context, title, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	c.texts = append(c.texts, text)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T, maxAttempts int) (*OutboxWorker, *memory.Store, *scriptedExec, *countingNotifier, *clock) {
	t.Helper()
	store := memory.New()
	exec := newExec()
	n := &countingNotifier{}
	c := &clock{t: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
	w := NewOutboxWorker(zap.NewNop(), store, exec, n, OutboxConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
	})
	w.Now = c.now
	return w, store, exec, n, c
}

func effect(id string, kind domain.SideEffectKind, at time.Time) domain.SideEffect {
	return domain.SideEffect{ID: id, EventID: "evt_1", Kind: kind, Email: "a@example.com", Credits: 3, NextRunAt: at}
}

func TestOutboxWorker_DoneOnSuccess(t *testing.T) {
	w, store, exec, n, c := setup(t, 3)
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx,
		effect("a", domain.SideEffectActivatePending, c.t),
		effect("b", domain.SideEffectSendConfirmation, c.t),
	))

	st, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, PassStats{Done: 2}, st)

	st, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, PassStats{}, st, "done records are not picked up again")
	assert.Equal(t, 1, exec.calls["a"])
	assert.Empty(t, n.titles)
}

func TestOutboxWorker_RetriesThenFailsAndNotifiesOnce(t *testing.T) {
	w, store, exec, n, c := setup(t, 3)
	ctx := context.Background()
	exec.fails["a"] = -1
	require.NoError(t, store.Enqueue(ctx, effect("a", domain.SideEffectActivatePending, c.t)))

	st, _ := w.RunOnce(ctx)
	assert.Equal(t, PassStats{Retried: 1}, st)
	rec, _ := store.SideEffect("a")
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, c.t.Add(time.Second), rec.NextRunAt)
	assert.Equal(t, "alerts api down", rec.LastError)

	st, _ = w.RunOnce(ctx)
	assert.Equal(t, PassStats{}, st, "not due before the backoff elapses")

	c.advance(time.Second)
	st, _ = w.RunOnce(ctx)
	assert.Equal(t, PassStats{Retried: 1}, st)
	rec, _ = store.SideEffect("a")
	assert.Equal(t, c.t.Add(2*time.Second), rec.NextRunAt, "delay doubles")

	c.advance(time.Hour)
	st, _ = w.RunOnce(ctx)
	assert.Equal(t, PassStats{Failed: 1}, st)
	rec, _ = store.SideEffect("a")
	require.NotNil(t, rec.FailedAt)
	assert.Equal(t, 3, rec.Attempts)

	c.advance(time.Hour)
	st, _ = w.RunOnce(ctx)
	assert.Equal(t, PassStats{}, st)

	assert.Equal(t, 3, exec.calls["a"])
	require.Len(t, n.titles, 1)
	assert.Equal(t, "Side effect failed", n.titles[0])
	assert.Contains(t, n.texts[0], "activate_pending")
	assert.Contains(t, n.texts[0], "a@example.com")
}

func TestOutboxWorker_TransientFailureRecovers(t *testing.T) {
	w, store, exec, n, c := setup(t, 5)
	ctx := context.Background()
	exec.fails["b"] = 1
	require.NoError(t, store.Enqueue(ctx, effect("b", domain.SideEffectSendConfirmation, c.t)))

	_, _ = w.RunOnce(ctx)
	c.advance(time.Minute)
	st, _ := w.RunOnce(ctx)
	assert.Equal(t, PassStats{Done: 1}, st)
	rec, _ := store.SideEffect("b")
	assert.NotNil(t, rec.CompletedAt)
	assert.Empty(t, n.titles)
}

func TestOutboxWorker_DelayIsCapped(t *testing.T) {
	w, _, _, _, _ := setup(t, 20)
	assert.Equal(t, time.Second, w.delay(1))
	assert.Equal(t, 4*time.Second, w.delay(3))
	assert.Equal(t, time.Minute, w.delay(12))
}

func TestOutboxWorker_RunStopsOnCancel(t *testing.T) {
	w, store, exec, _, c := setup(t, 3)
	require.NoError(t, store.Enqueue(context.Background(), effect("a", domain.SideEffectActivatePending, c.t)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.calls["a"] == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
