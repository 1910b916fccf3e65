// Package reconcile turns verified payment webhooks into credit increments
// and the follow-up cascade (reactivation and confirmation mail).
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/repo"
)

// Outcome is how one delivery ended. Every outcome is acknowledged upstream.
type Outcome string

const (
	Rejected        Outcome = "rejected"
	Ignored         Outcome = "ignored"
	Skipped         Outcome = "skipped"
	IncrementFailed Outcome = "increment_failed"
	Duplicate       Outcome = "duplicate"
	Incremented     Outcome = repo.LedgerApplied
)

type Verifier interface {
	Verify(payload []byte, signature string) (domain.PaymentEvent, error)
}

type Reconciler struct {
	Verifier Verifier
	Prices   domain.PriceTable
	Credits  repo.CreditStore
	Logger   *zap.Logger

	// Outbox, when set, replaces Credits for the increment and persists the
	// cascade as side effects instead of dispatching it.
	Outbox  repo.CreditOutbox
	Cascade Dispatcher       // used when Outbox is nil
	Ledger  repo.EventLedger // nil disables dedupe

	Now   func() time.Time
	NewID func() string
}

func New(v Verifier, prices domain.PriceTable, credits repo.CreditStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		Verifier: v,
		Prices:   prices,
		Credits:  credits,
		Logger:   logger,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// Handle processes one delivery. payload must be the raw request body.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) Outcome {
	ev, err := r.Verifier.Verify(payload, signature)
	if err != nil {
		r.Logger.Warn("webhook_signature_invalid", zap.Int("bytes", len(payload)), zap.Error(err))
		return Rejected
	}
	if ev.Type != domain.EventCheckoutCompleted {
		r.Logger.Info("webhook_event_ignored", zap.String("event_id", ev.ID), zap.String("type", ev.Type))
		return Ignored
	}

	email := strings.ToLower(strings.TrimSpace(ev.CustomerEmail))
	credits := r.Prices.Credits(ev.PriceID)
	hash := payloadHash(payload)
	if ev.ID == "" {
		ev.ID = "sha256:" + hash
	}
	log := r.Logger.With(zap.String("event_id", ev.ID), zap.String("email", email))

	claimed := false
	if r.Ledger != nil {
		var dup bool
		claimed, dup = r.claim(ctx, log, repo.LedgerEntry{
			EventID:     ev.ID,
			Type:        ev.Type,
			Email:       email,
			Credits:     credits,
			PayloadHash: hash,
			ReceivedAt:  r.Now().UTC(),
		})
		if dup {
			log.Info("webhook_duplicate")
			return Duplicate
		}
	}

	out := r.apply(ctx, log, ev, email, credits)
	if claimed {
		if err := r.Ledger.MarkProcessed(ctx, ev.ID, string(out)); err != nil {
			log.Error("webhook_ledger_error", zap.String("op", "mark_processed"), zap.Error(err))
		}
	}
	return out
}

// claim records the event. A ledger failure never blocks processing.
func (r *Reconciler) claim(ctx context.Context, log *zap.Logger, e repo.LedgerEntry) (claimed, duplicate bool) {
	_, created, err := r.Ledger.Record(ctx, e)
	if err != nil {
		log.Error("webhook_ledger_error", zap.String("op", "record"), zap.Error(err))
		return false, false
	}
	if created {
		return true, false
	}
	reopened, err := r.Ledger.Reopen(ctx, e.EventID)
	if err != nil {
		log.Error("webhook_ledger_error", zap.String("op", "reopen"), zap.Error(err))
		return false, true
	}
	if !reopened {
		return false, true
	}
	log.Info("webhook_reprocessing")
	return true, false
}

func (r *Reconciler) apply(ctx context.Context, log *zap.Logger, ev domain.PaymentEvent, email string, credits int) Outcome {
	if email == "" || credits <= 0 {
		log.Warn("webhook_skipped",
			zap.String("price_id", ev.PriceID),
			zap.Int("credits", credits),
			zap.Bool("has_email", email != ""),
		)
		return Skipped
	}

	var err error
	if r.Outbox != nil {
		err = r.Outbox.IncrementCreditsWithEffects(ctx, email, credits, r.sideEffects(ev.ID, email, credits))
	} else {
		err = r.Credits.IncrementCredits(ctx, email, credits)
	}
	if err != nil {
		log.Error("credits_increment_failed", zap.Int("credits", credits), zap.Error(err))
		return IncrementFailed
	}
	log.Info("credits_incremented", zap.Int("credits", credits), zap.String("price_id", ev.PriceID))

	if r.Outbox == nil && r.Cascade != nil {
		r.Cascade.Dispatch(ctx, Cascade{EventID: ev.ID, Email: email, Credits: credits})
	}
	return Incremented
}

func (r *Reconciler) sideEffects(eventID, email string, credits int) []domain.SideEffect {
	now := r.Now().UTC()
	mk := func(kind domain.SideEffectKind) domain.SideEffect {
		return domain.SideEffect{
			ID:        r.NewID(),
			EventID:   eventID,
			Kind:      kind,
			Email:     email,
			Credits:   credits,
			NextRunAt: now,
			CreatedAt: now,
		}
	}
	return []domain.SideEffect{
		mk(domain.SideEffectActivatePending),
		mk(domain.SideEffectSendConfirmation),
	}
}

func payloadHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
