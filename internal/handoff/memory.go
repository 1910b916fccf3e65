package handoff

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Expired entries are dropped on write.
type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]Record
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]Record), now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, r := range s.m {
		if !now.Before(r.ExpiresAt) {
			delete(s.m, id)
		}
	}
	s.m[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}
