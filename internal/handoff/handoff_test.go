package handoff

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(NewMemoryStore(), 30*time.Minute)
	svc.Now = func() time.Time { return clock }
	svc.NewID = func() string { return "fixed-id" }

	id, err := svc.Create(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	rec, err := svc.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", rec.Email)

	clock = clock.Add(31 * time.Minute)
	_, err = svc.Lookup(ctx, id)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestService_LookupUnknown(t *testing.T) {
	svc := NewService(NewMemoryStore(), time.Minute)
	_, err := svc.Lookup(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Lookup(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_IDsAreUnique(t *testing.T) {
	svc := NewService(NewMemoryStore(), time.Minute)
	a, err := svc.Create(context.Background(), "a@example.com")
	require.NoError(t, err)
	b, err := svc.Create(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestMemoryStore_DropsExpiredOnPut(t *testing.T) {
	s := NewMemoryStore()
	clock := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Record{ID: "old", ExpiresAt: clock.Add(time.Second)}))
	clock = clock.Add(time.Minute)
	require.NoError(t, s.Put(ctx, Record{ID: "new", ExpiresAt: clock.Add(time.Minute)}))

	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis integration test")
	}
	ctx := context.Background()
	client, err := Dial(ctx, addr, os.Getenv("REDIS_PASSWORD"))
	require.NoError(t, err)
	defer client.Close()

	svc := NewService(NewRedisStore(client), time.Minute)
	id, err := svc.Create(ctx, "redis@example.com")
	require.NoError(t, err)

	rec, err := svc.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "redis@example.com", rec.Email)

	_, err = svc.Lookup(ctx, "missing-"+id)
	assert.ErrorIs(t, err, ErrNotFound)
}
