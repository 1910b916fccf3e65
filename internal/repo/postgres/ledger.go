package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/tablealert/internal/repo"
)

// ---- EventLedger ----

func (s *Store) Record(ctx context.Context, e repo.LedgerEntry) (repo.LedgerEntry, bool, error) {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_events (event_id, type, email, credits, payload_hash, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.Type, e.Email, e.Credits, e.PayloadHash, e.ReceivedAt,
	)
	if err != nil {
		return repo.LedgerEntry{}, false, fmt.Errorf("insert webhook event: %w", err)
	}
	created := tag.RowsAffected() > 0

	var stored repo.LedgerEntry
	err = s.pool.QueryRow(ctx, `
		SELECT event_id, type, email, credits, payload_hash, outcome, received_at, processed_at
		  FROM webhook_events
		 WHERE event_id = $1`, e.EventID,
	).Scan(&stored.EventID, &stored.Type, &stored.Email, &stored.Credits, &stored.PayloadHash,
		&stored.Outcome, &stored.ReceivedAt, &stored.ProcessedAt)
	if err != nil {
		return repo.LedgerEntry{}, false, fmt.Errorf("read webhook event: %w", err)
	}
	return stored, created, nil
}

func (s *Store) Reopen(ctx context.Context, eventID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		   SET outcome = '', processed_at = NULL
		 WHERE event_id = $1 AND outcome <> '' AND outcome <> $2`,
		eventID, repo.LedgerApplied,
	)
	if err != nil {
		return false, fmt.Errorf("reopen webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) MarkProcessed(ctx context.Context, eventID, outcome string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		   SET outcome = $2, processed_at = now()
		 WHERE event_id = $1`,
		eventID, outcome,
	)
	if err != nil {
		return fmt.Errorf("mark webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
