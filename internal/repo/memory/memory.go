package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/repo"
)

var (
	_ repo.CreditStore  = (*Store)(nil)
	_ repo.CreditOutbox = (*Store)(nil)
	_ repo.EventLedger  = (*Store)(nil)
	_ repo.OutboxStore  = (*Store)(nil)
	_ repo.AlertLister  = (*Store)(nil)
)

// Store is the in-process adapter used for local runs and tests.
type Store struct {
	mu      sync.RWMutex
	credits map[string]int
	ledger  map[string]repo.LedgerEntry
	outbox  map[string]*domain.SideEffect
	alerts  []domain.Alert
}

func New() *Store {
	return &Store{
		credits: make(map[string]int),
		ledger:  make(map[string]repo.LedgerEntry),
		outbox:  make(map[string]*domain.SideEffect),
	}
}

// ---- CreditStore ----

func (m *Store) IncrementCredits(_ context.Context, email string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits[email] += amount
	return nil
}

func (m *Store) Credits(_ context.Context, email string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.credits[email]
	if !ok {
		return 0, repo.ErrNotFound
	}
	return n, nil
}

func (m *Store) IncrementCreditsWithEffects(_ context.Context, email string, amount int, effects []domain.SideEffect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits[email] += amount
	m.enqueueLocked(effects)
	return nil
}

// ---- EventLedger ----

func (m *Store) Record(_ context.Context, e repo.LedgerEntry) (repo.LedgerEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.ledger[e.EventID]; ok {
		return cur, false, nil
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	m.ledger[e.EventID] = e
	return e, true, nil
}

func (m *Store) Reopen(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.ledger[eventID]
	if !ok || cur.Outcome == "" || cur.Outcome == repo.LedgerApplied {
		return false, nil
	}
	cur.Outcome = ""
	cur.ProcessedAt = nil
	m.ledger[eventID] = cur
	return true, nil
}

func (m *Store) MarkProcessed(_ context.Context, eventID, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.ledger[eventID]
	if !ok {
		return repo.ErrNotFound
	}
	now := time.Now().UTC()
	cur.Outcome = outcome
	cur.ProcessedAt = &now
	m.ledger[eventID] = cur
	return nil
}

// Entry returns a copy of the ledger entry for eventID.
func (m *Store) Entry(eventID string) (repo.LedgerEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.ledger[eventID]
	return e, ok
}

// ---- OutboxStore ----

func (m *Store) Enqueue(_ context.Context, effects ...domain.SideEffect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueueLocked(effects)
	return nil
}

func (m *Store) enqueueLocked(effects []domain.SideEffect) {
	for _, e := range effects {
		e := e
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		m.outbox[e.ID] = &e
	}
}

func (m *Store) Due(_ context.Context, now time.Time, limit int) ([]domain.SideEffect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.SideEffect, 0, len(m.outbox))
	for _, e := range m.outbox {
		if e.CompletedAt != nil || e.FailedAt != nil || e.NextRunAt.After(now) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRunAt.Equal(out[j].NextRunAt) {
			return out[i].NextRunAt.Before(out[j].NextRunAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) MarkDone(_ context.Context, id string, at time.Time) error {
	return m.update(id, func(e *domain.SideEffect) {
		e.Attempts++
		e.CompletedAt = &at
		e.LastError = ""
	})
}

func (m *Store) MarkRetry(_ context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return m.update(id, func(e *domain.SideEffect) {
		e.Attempts = attempts
		e.NextRunAt = next
		e.LastError = lastErr
	})
}

func (m *Store) MarkFailed(_ context.Context, id string, attempts int, at time.Time, lastErr string) error {
	return m.update(id, func(e *domain.SideEffect) {
		e.Attempts = attempts
		e.FailedAt = &at
		e.LastError = lastErr
	})
}

func (m *Store) update(id string, fn func(*domain.SideEffect)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.outbox[id]
	if !ok {
		return repo.ErrNotFound
	}
	fn(e)
	return nil
}

// SideEffect returns a copy of the outbox record with id.
func (m *Store) SideEffect(id string) (domain.SideEffect, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.outbox[id]
	if !ok {
		return domain.SideEffect{}, false
	}
	return *e, true
}

// ---- AlertLister ----

// AddAlert seeds an alert document; used in local runs without Mongo.
func (m *Store) AddAlert(a domain.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
}

func (m *Store) ListByEmail(_ context.Context, email string) ([]domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Alert, 0)
	for _, a := range m.alerts {
		if a.Email == email {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
