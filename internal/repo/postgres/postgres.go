package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/repo"
)

var (
	_ repo.CreditStore  = (*Store)(nil)
	_ repo.CreditOutbox = (*Store)(nil)
	_ repo.EventLedger  = (*Store)(nil)
	_ repo.OutboxStore  = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ---- CreditStore ----

func (s *Store) IncrementCredits(ctx context.Context, email string, amount int) error {
	total, err := incrementCredits(ctx, s.pool, email, amount)
	if err != nil {
		return err
	}
	s.log.Debug("pg_credits_incremented", zap.String("email", email), zap.Int("amount", amount), zap.Int("total", total))
	return nil
}

func incrementCredits(ctx context.Context, db execer, email string, amount int) (int, error) {
	var total int
	if err := db.QueryRow(ctx, `SELECT increment_credits($1, $2)`, email, amount).Scan(&total); err != nil {
		return 0, fmt.Errorf("increment credits: %w", err)
	}
	return total, nil
}

func (s *Store) Credits(ctx context.Context, email string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT credits FROM profiles WHERE email = $1`, email).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repo.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read credits: %w", err)
	}
	return n, nil
}

// IncrementCreditsWithEffects runs the increment and the outbox inserts in
// one transaction; either all of it lands or none.
func (s *Store) IncrementCreditsWithEffects(ctx context.Context, email string, amount int, effects []domain.SideEffect) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := incrementCredits(ctx, tx, email, amount); err != nil {
		return err
	}
	if err := insertEffects(ctx, tx, effects); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
