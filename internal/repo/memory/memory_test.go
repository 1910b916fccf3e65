package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/repo"
)

func TestMemoryStore_IncrementIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Credits(ctx, "a@example.com")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.IncrementCredits(ctx, "a@example.com", 3)
		}()
	}
	wg.Wait()

	n, err := s.Credits(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 150, n)
}

func TestMemoryStore_Ledger(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, created, err := s.Record(ctx, repo.LedgerEntry{EventID: "evt_1", Email: "a@example.com", Credits: 1})
	require.NoError(t, err)
	assert.True(t, created)

	stored, created, err := s.Record(ctx, repo.LedgerEntry{EventID: "evt_1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "a@example.com", stored.Email)

	// in flight: nothing to reopen
	ok, err := s.Reopen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkProcessed(ctx, "evt_1", "increment_failed"))
	ok, _ = s.Reopen(ctx, "evt_1")
	assert.True(t, ok)

	require.NoError(t, s.MarkProcessed(ctx, "evt_1", repo.LedgerApplied))
	ok, _ = s.Reopen(ctx, "evt_1")
	assert.False(t, ok)

	assert.ErrorIs(t, s.MarkProcessed(ctx, "evt_missing", "x"), repo.ErrNotFound)
}

func TestMemoryStore_Outbox(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.IncrementCreditsWithEffects(ctx, "a@example.com", 5, []domain.SideEffect{
		{ID: "b", Kind: domain.SideEffectSendConfirmation, NextRunAt: now},
		{ID: "a", Kind: domain.SideEffectActivatePending, NextRunAt: now},
		{ID: "later", Kind: domain.SideEffectActivatePending, NextRunAt: now.Add(time.Hour)},
	}))
	n, _ := s.Credits(ctx, "a@example.com")
	assert.Equal(t, 5, n)

	due, err := s.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].ID)

	require.NoError(t, s.MarkDone(ctx, "a", now))
	require.NoError(t, s.MarkRetry(ctx, "b", 1, now.Add(time.Minute), "boom"))
	due, _ = s.Due(ctx, now, 10)
	assert.Empty(t, due)

	due, _ = s.Due(ctx, now.Add(2*time.Hour), 1)
	require.Len(t, due, 1)
	assert.Equal(t, "b", due[0].ID)

	require.NoError(t, s.MarkFailed(ctx, "b", 8, now, "gave up"))
	e, ok := s.SideEffect("b")
	require.True(t, ok)
	assert.NotNil(t, e.FailedAt)
	assert.Equal(t, 8, e.Attempts)

	assert.ErrorIs(t, s.MarkDone(ctx, "missing", now), repo.ErrNotFound)
}

func TestMemoryStore_ListByEmailNewestFirst(t *testing.T) {
	s := New()
	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	s.AddAlert(domain.Alert{ID: "1", Email: "a@example.com", CreatedAt: base})
	s.AddAlert(domain.Alert{ID: "2", Email: "a@example.com", CreatedAt: base.Add(time.Hour)})
	s.AddAlert(domain.Alert{ID: "3", Email: "b@example.com", CreatedAt: base})

	got, err := s.ListByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
}
