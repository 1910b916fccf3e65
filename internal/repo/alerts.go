package repo

import (
	"context"

	"github.com/hamed0406/tablealert/internal/domain"
)

// AlertLister reads a user's alerts from the alert document store, newest
// first. The store is owned by the alerts service; this side never writes.
type AlertLister interface {
	ListByEmail(ctx context.Context, email string) ([]domain.Alert, error)
}
