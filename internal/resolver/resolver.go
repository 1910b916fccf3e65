package resolver

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/domain"
)

// Action is what the alert-submitted page does once the status is known.
type Action string

const (
	ShowSuccess Action = "show_success"
	Redirect    Action = "redirect"
)

// Decision is the terminal state of one resolution.
type Decision struct {
	Action    Action
	Status    domain.AlertStatus
	Email     string
	Attempts  int    // polls issued after the baseline read
	HandoffID string // empty when no email was given or the handoff store failed
}

// Input carries the email sources of the alert-submitted page. The query
// parameter wins over the path segment.
type Input struct {
	QueryEmail string
	PathEmail  string
}

// Alerts is the read side of the alerts API.
type Alerts interface {
	Latest(ctx context.Context, email string) (domain.AlertRecord, error)
}

// Handoffs keeps the resolved email for the checkout flow.
type Handoffs interface {
	Create(ctx context.Context, email string) (string, error)
}

type Resolver struct {
	Alerts   Alerts
	Handoffs Handoffs // optional
	Policy   Policy
	Logger   *zap.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func New(alerts Alerts, handoffs Handoffs, policy Policy, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		Alerts:   alerts,
		Handoffs: handoffs,
		Policy:   policy.normalized(),
		Logger:   logger,
		Now:      time.Now,
		Sleep:    sleepCtx,
	}
}

// Resolve decides whether a just-submitted alert is live or waiting on
// payment. It never fails: errors and cancellation resolve to the success
// state with status active.
func (r *Resolver) Resolve(ctx context.Context, in Input) Decision {
	raw := strings.TrimSpace(in.QueryEmail)
	if raw == "" {
		raw = strings.TrimSpace(in.PathEmail)
	}
	if raw == "" {
		r.Logger.Warn("resolver_no_email")
		return Decision{Action: ShowSuccess, Status: domain.StatusActive}
	}

	email := domain.NormalizeEmail(raw)
	d := Decision{Email: email}
	if r.Handoffs != nil {
		id, err := r.Handoffs.Create(ctx, email)
		if err != nil {
			r.Logger.Warn("resolver_handoff_error", zap.String("email", email), zap.Error(err))
		}
		d.HandoffID = id
	}

	baseline, err := r.Alerts.Latest(ctx, email)
	if err != nil {
		return r.failOpen(d, err)
	}
	age := baseline.Age(r.Now())
	r.Logger.Info("resolver_baseline",
		zap.String("email", email),
		zap.String("status", string(baseline.Status)),
		zap.Duration("age", age),
	)

	if baseline.Status == domain.StatusNone ||
		(baseline.Status == domain.StatusActive && age < r.Policy.Freshness) {
		d.Action, d.Status = ShowSuccess, domain.StatusActive
		return d
	}

	latest := baseline
	delays := r.Policy.schedule()
	for attempt := 1; attempt <= r.Policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.Sleep(ctx, delays.NextBackOff()); err != nil {
				return r.failOpen(d, err)
			}
		}
		rec, err := r.Alerts.Latest(ctx, email)
		if err != nil {
			return r.failOpen(d, err)
		}
		latest = rec
		d.Attempts = attempt

		r.Logger.Info("resolver_attempt",
			zap.String("email", email),
			zap.Int("attempt", attempt),
			zap.String("status", string(rec.Status)),
			zap.String("created_at", rec.CreatedAt),
		)
		if rec.Status == domain.StatusPendingPayment ||
			(rec.CreatedAt != "" && rec.CreatedAt != baseline.CreatedAt) {
			break
		}
	}

	d.Status = latest.Status
	if latest.Status == domain.StatusPendingPayment {
		d.Action = Redirect
		r.Logger.Info("resolver_redirect", zap.String("email", email), zap.Int("attempts", d.Attempts))
		return d
	}
	d.Action = ShowSuccess
	return d
}

func (r *Resolver) failOpen(d Decision, err error) Decision {
	r.Logger.Warn("resolver_fail_open", zap.String("email", d.Email), zap.Int("attempts", d.Attempts), zap.Error(err))
	d.Action, d.Status = ShowSuccess, domain.StatusActive
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
