package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/tablealert/internal/domain"
)

var ErrNotFound = errors.New("repo: not found")

// Ports implemented by the memory, postgres and supabase adapters.

// CreditStore owns the per-email credit balance. IncrementCredits must be a
// single store-side atomic operation, never a read-modify-write.
type CreditStore interface {
	IncrementCredits(ctx context.Context, email string, amount int) error
	Credits(ctx context.Context, email string) (int, error)
}

// CreditOutbox applies an increment and persists its follow-up side
// effects in one transaction.
type CreditOutbox interface {
	IncrementCreditsWithEffects(ctx context.Context, email string, amount int, effects []domain.SideEffect) error
}

// LedgerApplied is the ledger outcome of an event whose credits were applied.
// Entries with any other non-empty outcome may be reopened.
const LedgerApplied = "incremented"

// LedgerEntry is one received webhook event. Outcome stays empty while the
// event is being processed.
type LedgerEntry struct {
	EventID     string
	Type        string
	Email       string
	Credits     int
	PayloadHash string
	Outcome     string
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

// EventLedger records webhook events by provider event id.
type EventLedger interface {
	// Record inserts e unless an entry with the same EventID exists. It
	// returns the stored entry and whether this call created it.
	Record(ctx context.Context, e LedgerEntry) (LedgerEntry, bool, error)
	// Reopen clears the outcome of a stored entry that finished with an
	// outcome other than LedgerApplied, so a redelivery can be processed
	// again. It reports whether the entry was reopened.
	Reopen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, outcome string) error
}

// OutboxStore holds side effects waiting to run.
type OutboxStore interface {
	Enqueue(ctx context.Context, effects ...domain.SideEffect) error
	Due(ctx context.Context, now time.Time, limit int) ([]domain.SideEffect, error)
	MarkDone(ctx context.Context, id string, at time.Time) error
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id string, attempts int, at time.Time, lastErr string) error
}
