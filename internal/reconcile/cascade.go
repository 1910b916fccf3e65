package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/alertsapi"
	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/repo"
)

// Cascade is the follow-up work of one applied increment.
type Cascade struct {
	EventID string
	Email   string
	Credits int
}

type Dispatcher interface {
	Dispatch(ctx context.Context, c Cascade)
}

type Activator interface {
	ActivatePending(ctx context.Context, email string) (alertsapi.ActivationResult, error)
}

type Confirmer interface {
	SendConfirmation(ctx context.Context, email string, credits int) error
}

// Steps runs the two downstream calls. Each call gets its own timeout and
// a failure of one never skips the other.
type Steps struct {
	Activator Activator
	Confirmer Confirmer
	Timeout   time.Duration
	Logger    *zap.Logger
}

func NewSteps(a Activator, c Confirmer, timeout time.Duration, logger *zap.Logger) Steps {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Steps{Activator: a, Confirmer: c, Timeout: timeout, Logger: logger}
}

func (s Steps) Run(ctx context.Context, c Cascade) {
	log := s.Logger.With(zap.String("event_id", c.EventID), zap.String("email", c.Email))
	if err := s.Activate(ctx, c.Email); err != nil {
		log.Warn("cascade_activate_failed", zap.Error(err))
	}
	if err := s.Confirm(ctx, c.Email, c.Credits); err != nil {
		log.Warn("cascade_confirmation_failed", zap.Int("credits", c.Credits), zap.Error(err))
	}
}

func (s Steps) Activate(ctx context.Context, email string) error {
	if s.Activator == nil {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.Activator.ActivatePending(ctx, email)
	if err != nil {
		return err
	}
	s.Logger.Info("cascade_activated", zap.String("email", email), zap.Any("result", res))
	return nil
}

func (s Steps) Confirm(ctx context.Context, email string, credits int) error {
	if s.Confirmer == nil {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.Confirmer.SendConfirmation(ctx, email, credits); err != nil {
		return err
	}
	s.Logger.Info("cascade_confirmation_sent", zap.String("email", email), zap.Int("credits", credits))
	return nil
}

// Execute runs one persisted side effect.
func (s Steps) Execute(ctx context.Context, e domain.SideEffect) error {
	switch e.Kind {
	case domain.SideEffectActivatePending:
		return s.Activate(ctx, e.Email)
	case domain.SideEffectSendConfirmation:
		return s.Confirm(ctx, e.Email, e.Credits)
	default:
		return fmt.Errorf("unknown side effect kind %q", e.Kind)
	}
}

func (s Steps) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

// Inline runs the cascade before returning.
type Inline struct{ Steps Steps }

func (d Inline) Dispatch(ctx context.Context, c Cascade) { d.Steps.Run(ctx, c) }

// Async runs each cascade in its own goroutine, detached from the caller's
// cancellation. Wait drains in-flight cascades at shutdown.
type Async struct {
	Steps Steps
	wg    sync.WaitGroup
}

func NewAsync(steps Steps) *Async { return &Async{Steps: steps} }

func (d *Async) Dispatch(ctx context.Context, c Cascade) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Steps.Run(ctx, c)
	}()
}

func (d *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SplitOutbox gives outbox semantics to credit stores without transactions:
// the increment runs first, then the side effects are queued. A queueing
// failure is logged; the credits are already applied.
type SplitOutbox struct {
	Credits repo.CreditStore
	Queue   repo.OutboxStore
	Logger  *zap.Logger
}

func (s SplitOutbox) IncrementCreditsWithEffects(ctx context.Context, email string, amount int, effects []domain.SideEffect) error {
	if err := s.Credits.IncrementCredits(ctx, email, amount); err != nil {
		return err
	}
	if err := s.Queue.Enqueue(ctx, effects...); err != nil && s.Logger != nil {
		s.Logger.Error("outbox_enqueue_failed", zap.String("email", email), zap.Int("effects", len(effects)), zap.Error(err))
	}
	return nil
}
