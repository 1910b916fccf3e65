// Package handoff carries the resolved alert email from the alert-submitted
// page to the upgrade page as a short-lived server-side record, referenced by
// a random id in the URL.
package handoff

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("handoff: not found")
	ErrExpired  = errors.New("handoff: expired")
)

type Record struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists records until they expire.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
}

type Service struct {
	Store Store
	TTL   time.Duration
	Now   func() time.Time
	NewID func() string
}

func NewService(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{Store: store, TTL: ttl, Now: time.Now, NewID: uuid.NewString}
}

// Create stores email under a fresh id and returns the id.
func (s *Service) Create(ctx context.Context, email string) (string, error) {
	rec := Record{
		ID:        s.NewID(),
		Email:     email,
		ExpiresAt: s.Now().Add(s.TTL).UTC(),
	}
	if err := s.Store.Put(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Lookup returns the record for id. Blank, unknown and expired ids are
// errors; callers treat all of them as "no email".
func (s *Service) Lookup(ctx context.Context, id string) (Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, ErrNotFound
	}
	rec, err := s.Store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !s.Now().Before(rec.ExpiresAt) {
		return Record{}, ErrExpired
	}
	return rec, nil
}
