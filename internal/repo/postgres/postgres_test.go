package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/repo"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", migrateURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://h/db", migrateURL("postgresql://h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}
	require.NoError(t, Migrate(dsn))
	store, err := New(context.Background(), dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func uniqueEmail(tag string) string {
	return fmt.Sprintf("%s-%d@example.com", tag, time.Now().UTC().UnixNano())
}

func TestPostgresStore_ConcurrentIncrements(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	email := uniqueEmail("credits")

	_, err := store.Credits(ctx, email)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.IncrementCredits(ctx, email, 5))
		}()
	}
	wg.Wait()

	n, err := store.Credits(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestPostgresStore_LedgerAndOutbox(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	email := uniqueEmail("ledger")
	eventID := "evt_" + email

	_, created, err := store.Record(ctx, repo.LedgerEntry{EventID: eventID, Type: domain.EventCheckoutCompleted, Email: email, Credits: 3})
	require.NoError(t, err)
	assert.True(t, created)

	stored, created, err := store.Record(ctx, repo.LedgerEntry{EventID: eventID, Type: domain.EventCheckoutCompleted})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, email, stored.Email)

	require.NoError(t, store.MarkProcessed(ctx, eventID, "increment_failed"))
	ok, err := store.Reopen(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, store.MarkProcessed(ctx, eventID, repo.LedgerApplied))
	ok, _ = store.Reopen(ctx, eventID)
	assert.False(t, ok)

	now := time.Now().UTC().Truncate(time.Microsecond)
	effects := []domain.SideEffect{
		{ID: "se_a_" + email, EventID: eventID, Kind: domain.SideEffectActivatePending, Email: email, Credits: 3, NextRunAt: now},
		{ID: "se_b_" + email, EventID: eventID, Kind: domain.SideEffectSendConfirmation, Email: email, Credits: 3, NextRunAt: now},
	}
	require.NoError(t, store.IncrementCreditsWithEffects(ctx, email, 3, effects))

	n, err := store.Credits(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	due, err := store.Due(ctx, now.Add(time.Second), 1000)
	require.NoError(t, err)
	var mine []domain.SideEffect
	for _, e := range due {
		if e.Email == email {
			mine = append(mine, e)
		}
	}
	require.Len(t, mine, 2)

	require.NoError(t, store.MarkDone(ctx, effects[0].ID, now))
	require.NoError(t, store.MarkRetry(ctx, effects[1].ID, 1, now.Add(time.Hour), "boom"))
	require.NoError(t, store.MarkFailed(ctx, effects[1].ID, 2, now, "gave up"))
	assert.ErrorIs(t, store.MarkDone(ctx, "missing-"+email, now), repo.ErrNotFound)
}

func TestPostgresStore_DueClaimsRows(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	email := uniqueEmail("claim")
	now := time.Now().UTC().Truncate(time.Microsecond)

	var effects []domain.SideEffect
	for i := 0; i < 6; i++ {
		effects = append(effects, domain.SideEffect{
			ID: fmt.Sprintf("se_%d_%s", i, email), EventID: "evt_" + email,
			Kind: domain.SideEffectSendConfirmation, Email: email, Credits: 1, NextRunAt: now,
		})
	}
	require.NoError(t, store.Enqueue(ctx, effects...))

	mine := func(due []domain.SideEffect) []string {
		var ids []string
		for _, e := range due {
			if e.Email == email {
				ids = append(ids, e.ID)
			}
		}
		return ids
	}

	// Two workers polling at once split the rows between them.
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		seen   = map[string]int{}
		claims [2][]string
	)
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			due, err := store.Due(ctx, now.Add(time.Second), 1000)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			claims[w] = mine(due)
			for _, id := range claims[w] {
				seen[id]++
			}
		}(w)
	}
	wg.Wait()
	assert.Len(t, seen, len(effects))
	for id, n := range seen {
		assert.Equal(t, 1, n, "side effect %s claimed twice", id)
	}

	// Still leased.
	due, err := store.Due(ctx, now.Add(time.Minute), 1000)
	require.NoError(t, err)
	assert.Empty(t, mine(due))

	// A worker that never marked its rows loses them when the lease runs out.
	require.NoError(t, store.MarkDone(ctx, effects[0].ID, now))
	due, err = store.Due(ctx, now.Add(ClaimLease+time.Minute), 1000)
	require.NoError(t, err)
	assert.Len(t, mine(due), len(effects)-1)
}
