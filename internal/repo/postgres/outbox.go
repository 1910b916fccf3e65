package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/repo"
)

// ---- OutboxStore ----

func (s *Store) Enqueue(ctx context.Context, effects ...domain.SideEffect) error {
	return insertEffects(ctx, s.pool, effects)
}

func insertEffects(ctx context.Context, db execer, effects []domain.SideEffect) error {
	for _, e := range effects {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		_, err := db.Exec(ctx, `
			INSERT INTO side_effects (id, event_id, kind, email, credits, attempts, next_run_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.ID, e.EventID, string(e.Kind), e.Email, e.Credits, e.Attempts, e.NextRunAt, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert side effect %s: %w", e.Kind, err)
		}
	}
	return nil
}

// ClaimLease is how long a claimed side effect stays hidden from other
// workers. A worker that dies mid-run releases its rows when it expires.
const ClaimLease = 5 * time.Minute

// Due claims up to limit runnable side effects. Claimed rows move their
// next_run_at to now+ClaimLease in the same statement, and SKIP LOCKED keeps
// concurrent callers on disjoint rows, so replicas never run one effect twice
// while its lease is live.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]domain.SideEffect, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			SELECT id
			  FROM side_effects
			 WHERE completed_at IS NULL AND failed_at IS NULL AND next_run_at <= $1
			 ORDER BY next_run_at, id
			 LIMIT $2
			   FOR UPDATE SKIP LOCKED
		), leased AS (
			UPDATE side_effects se
			   SET next_run_at = $3
			  FROM claimed
			 WHERE se.id = claimed.id
			RETURNING se.id, se.event_id, se.kind, se.email, se.credits, se.attempts,
			          se.last_error, se.next_run_at, se.created_at
		)
		SELECT * FROM leased ORDER BY created_at, id`, now, limit, now.Add(ClaimLease))
	if err != nil {
		return nil, fmt.Errorf("claim side effects: %w", err)
	}
	defer rows.Close()

	var out []domain.SideEffect
	for rows.Next() {
		var (
			e    domain.SideEffect
			kind string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &kind, &e.Email, &e.Credits, &e.Attempts,
			&e.LastError, &e.NextRunAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan side effect: %w", err)
		}
		e.Kind = domain.SideEffectKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) MarkDone(ctx context.Context, id string, at time.Time) error {
	return s.updateEffect(ctx, `
		UPDATE side_effects
		   SET attempts = attempts + 1, completed_at = $2, last_error = ''
		 WHERE id = $1`, id, at)
}

func (s *Store) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return s.updateEffect(ctx, `
		UPDATE side_effects
		   SET attempts = $2, next_run_at = $3, last_error = $4
		 WHERE id = $1`, id, attempts, next, lastErr)
}

func (s *Store) MarkFailed(ctx context.Context, id string, attempts int, at time.Time, lastErr string) error {
	return s.updateEffect(ctx, `
		UPDATE side_effects
		   SET attempts = $2, failed_at = $3, last_error = $4
		 WHERE id = $1`, id, attempts, at, lastErr)
}

func (s *Store) updateEffect(ctx context.Context, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update side effect: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
