// Package app builds the service graph from Config. The API server and the
// CLI share it so both run the same adapters.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/alertsapi"
	"github.com/hamed0406/tablealert/internal/config"
	"github.com/hamed0406/tablealert/internal/handoff"
	"github.com/hamed0406/tablealert/internal/httpapi"
	"github.com/hamed0406/tablealert/internal/identity"
	"github.com/hamed0406/tablealert/internal/notify"
	"github.com/hamed0406/tablealert/internal/payments"
	"github.com/hamed0406/tablealert/internal/probe"
	"github.com/hamed0406/tablealert/internal/reconcile"
	"github.com/hamed0406/tablealert/internal/repo"
	"github.com/hamed0406/tablealert/internal/repo/memory"
	"github.com/hamed0406/tablealert/internal/repo/mongo"
	"github.com/hamed0406/tablealert/internal/repo/postgres"
	"github.com/hamed0406/tablealert/internal/repo/supabase"
	"github.com/hamed0406/tablealert/internal/resolver"
	"github.com/hamed0406/tablealert/internal/scheduler"
)

const (
	readinessInterval = 30 * time.Second
	readinessTimeout  = 5 * time.Second
	stripeAPIHost     = "api.stripe.com"
)

type App struct {
	Config config.Config
	Logger *zap.Logger

	Alerts     *alertsapi.Client
	Resolver   *resolver.Resolver
	Handoffs   *handoff.Service
	Reconciler *reconcile.Reconciler
	Steps      reconcile.Steps
	Credits    repo.CreditStore
	Queue      repo.OutboxStore
	Ops        notify.Notifier

	Async   *reconcile.Async        // async cascade mode only
	Worker  *scheduler.OutboxWorker // outbox cascade mode only
	Watcher *scheduler.Watcher
	Server  *httpapi.Server

	closers []func(context.Context) error
	bg      sync.WaitGroup
}

// Build connects the configured stores and wires every component. Stores
// left unconfigured fall back to memory. On error, anything already opened
// is closed.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.closeStores(context.Background()))
		}
	}()

	mem := memory.New()
	var (
		credits repo.CreditStore  = mem
		ledger  repo.EventLedger  = mem
		queue   repo.OutboxStore  = mem
		outbox  repo.CreditOutbox
		alerts  repo.AlertLister  = mem
		targets []probe.Target
	)

	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pg.Close(); return nil })
		credits, ledger, queue, outbox = pg, pg, pg, pg
		targets = append(targets, probe.Target{Name: "postgres", Checker: probe.PingChecker{Name: "postgres", Ping: pg.Ping}})
		logger.Info("store_selected", zap.String("store", "postgres"))
	} else if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		credits = supabase.New(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
		logger.Info("store_selected", zap.String("store", "supabase"))
	} else {
		logger.Warn("store_selected", zap.String("store", "memory"))
	}

	if cfg.MongoURI != "" {
		ms, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		a.closers = append(a.closers, ms.Close)
		alerts = ms
		targets = append(targets, probe.Target{Name: "mongo", Checker: probe.PingChecker{Name: "mongo", Ping: ms.Ping}})
	}

	var handoffStore handoff.Store = handoff.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rc, err := handoff.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
		handoffStore = handoff.NewRedisStore(rc)
		targets = append(targets, probe.Target{Name: "redis", Checker: probe.PingChecker{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rc.Ping(ctx).Err() },
		}})
	}

	a.Credits, a.Queue = credits, queue
	a.Alerts = alertsapi.New(cfg.AlertsAPIBaseURL, 10*time.Second)
	a.Handoffs = handoff.NewService(handoffStore, cfg.HandoffTTL)
	a.Resolver = resolver.New(a.Alerts, a.Handoffs, resolver.Policy{
		MaxAttempts: cfg.ResolverMaxAttempts,
		Delay:       cfg.ResolverDelay,
		Freshness:   cfg.ResolverFreshness,
		Multiplier:  cfg.ResolverMultiplier,
		Jitter:      cfg.ResolverJitter,
	}, logger.Named("resolver"))

	a.Ops = opsNotifier(cfg)
	a.Steps = reconcile.NewSteps(a.Alerts, notify.Confirmer{Mailer: mailers(cfg)}, cfg.CascadeTimeout, logger.Named("cascade"))

	prices := cfg.Prices()
	rec := reconcile.New(payments.NewVerifier(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance), prices, credits, logger.Named("webhook"))
	if cfg.WebhookDedupe {
		rec.Ledger = ledger
	}
	switch cfg.CascadeMode {
	case config.CascadeOutbox:
		if outbox == nil {
			outbox = reconcile.SplitOutbox{Credits: credits, Queue: queue, Logger: logger}
		}
		rec.Outbox = outbox
		a.Worker = scheduler.NewOutboxWorker(logger.Named("outbox"), queue, a.Steps, a.Ops, scheduler.OutboxConfig{
			PollInterval: cfg.OutboxPoll,
			MaxAttempts:  cfg.OutboxMaxAttempts,
		})
	case config.CascadeAsync:
		a.Async = reconcile.NewAsync(a.Steps)
		rec.Cascade = a.Async
	default:
		rec.Cascade = reconcile.Inline{Steps: a.Steps}
	}
	a.Reconciler = rec
	logger.Info("reconciler_configured",
		zap.String("cascade", cfg.CascadeMode),
		zap.Bool("dedupe", cfg.WebhookDedupe),
		zap.Int("prices", len(prices)),
	)

	var ids identity.Resolver = identity.Static{}
	if cfg.SupabaseURL != "" && cfg.SupabaseAnonKey != "" {
		ids = identity.NewSupabaseAuth(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		targets = append(targets, probe.Target{
			Name:    "supabase",
			URL:     cfg.SupabaseURL + "/auth/v1/health",
			Checker: probe.NewHTTPChecker(readinessTimeout).WithHeader("apikey", cfg.SupabaseAnonKey),
		})
	} else {
		logger.Warn("identity_disabled")
	}

	targets = append(targets,
		probe.Target{Name: "alerts_api", URL: cfg.AlertsAPIBaseURL, Checker: &probe.RetryChecker{
			Inner: probe.NewDNSChecker(), Attempts: 3, Backoff: 500 * time.Millisecond,
		}},
		probe.Target{Name: "stripe", URL: stripeAPIHost, Checker: probe.NewDNSChecker()},
	)
	if cfg.SMTPHost != "" {
		targets = append(targets, probe.Target{Name: "smtp", URL: cfg.SMTPHost, Checker: probe.NewDNSChecker()})
	}
	a.Watcher = scheduler.NewWatcher(logger.Named("readiness"), probe.NewMultiChecker(targets...), readinessInterval, readinessTimeout)

	srv := httpapi.NewServer(logger, httpapi.Options{
		CreateAlertURL: cfg.CreateAlertURL,
		AllowedOrigins: cfg.AllowedOrigins,
		PublicRPM:      cfg.PublicRPM,
		PublicBurst:    cfg.PublicBurst,
	})
	srv.Resolver = a.Resolver
	srv.Handoffs = a.Handoffs
	srv.Webhooks = rec
	srv.Checkout = payments.NewCheckout(payments.NewSessionClient(cfg.StripeSecretKey), prices, cfg.SiteURL)
	srv.Alerts = alerts
	srv.Credits = credits
	srv.Identity = ids
	srv.Readiness = a.Watcher
	srv.Prices = httpapi.Plans{Three: cfg.PriceThreeAlerts, Five: cfg.PriceFiveAlerts, Unlimited: cfg.PriceUnlimited}
	a.Server = srv

	return a, nil
}

// Start runs the readiness watcher and, in outbox mode, the outbox worker
// until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		a.Watcher.Run(ctx)
	}()
	if a.Worker != nil {
		a.bg.Add(1)
		go func() {
			defer a.bg.Done()
			if err := a.Worker.Run(ctx); err != nil && ctx.Err() == nil {
				a.Logger.Error("outbox_worker_exited", zap.Error(err))
			}
		}()
	}
}

// Close waits for background loops and in-flight cascades, then closes the
// stores. Call it after the HTTP server has stopped and the Start context
// is cancelled.
func (a *App) Close(ctx context.Context) error {
	var err error
	done := make(chan struct{})
	go func() {
		a.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("background loops: %w", ctx.Err()))
	}
	if a.Async != nil {
		if werr := a.Async.Wait(ctx); werr != nil {
			err = multierr.Append(err, fmt.Errorf("cascades: %w", werr))
		}
	}
	return multierr.Append(err, a.closeStores(ctx))
}

func (a *App) closeStores(ctx context.Context) error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i](ctx))
	}
	a.closers = nil
	return err
}

// mailers lists the configured providers, SendGrid first.
func mailers(cfg config.Config) notify.Fallback {
	var out notify.Fallback
	if sg := notify.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFrom); sg != nil {
		out = append(out, sg)
	}
	if sm := notify.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom); sm != nil {
		out = append(out, sm)
	}
	return out
}

func opsNotifier(cfg config.Config) notify.Notifier {
	if s := notify.NewSlack(cfg.SlackWebhookURL); s != nil {
		return notify.Multi{s}
	}
	return notify.Nop{}
}
