package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/handoff"
	"github.com/hamed0406/tablealert/internal/httpapi/middleware"
	"github.com/hamed0406/tablealert/internal/identity"
	"github.com/hamed0406/tablealert/internal/payments"
	"github.com/hamed0406/tablealert/internal/probe"
	"github.com/hamed0406/tablealert/internal/reconcile"
	"github.com/hamed0406/tablealert/internal/repo"
	"github.com/hamed0406/tablealert/internal/resolver"
)

// MaxWebhookBytes bounds the raw webhook body read before verification.
const MaxWebhookBytes = 64 << 10

type StatusResolver interface {
	Resolve(ctx context.Context, in resolver.Input) resolver.Decision
}

type HandoffLookup interface {
	Lookup(ctx context.Context, id string) (handoff.Record, error)
}

type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, signature string) reconcile.Outcome
}

type CheckoutCreator interface {
	Create(ctx context.Context, req payments.CheckoutRequest) (string, error)
}

// Readiness reports the latest dependency checks.
type Readiness interface {
	Snapshot() ([]probe.CheckResult, time.Time, bool)
}

type Options struct {
	CreateAlertURL string
	AllowedOrigins []string
	PublicRPM      int
	PublicBurst    int
}

type Server struct {
	Logger    *zap.Logger
	Resolver  StatusResolver
	Handoffs  HandoffLookup
	Webhooks  WebhookHandler
	Checkout  CheckoutCreator
	Alerts    repo.AlertLister
	Credits   repo.CreditStore
	Identity  identity.Resolver
	Readiness Readiness
	Prices    Plans
	Opts      Options

	validate *validator.Validate
}

func NewServer(l *zap.Logger, opts Options) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Opts: opts, validate: validator.New()}
}

// Plans are the configured price ids offered on the upgrade page.
type Plans struct {
	Three     string
	Five      string
	Unlimited string
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLog(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(s.corsHandler())

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// Signature verification needs the untouched body, so nothing on this
	// route may read or rewrite it first.
	r.Post("/api/webhooks/stripe", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.Opts.PublicRPM, s.Opts.PublicBurst, nil))

		r.Get("/alert-submitted", s.handleAlertSubmitted)
		r.Get("/alert-submitted/{email}", s.handleAlertSubmitted)
		r.Get("/upgrade", s.handleUpgrade)
		r.Get("/thank-you", s.handleThankYou)
		r.Get("/r/{slug}", s.handleReservationRedirect)

		r.With(middleware.BodyLimit(16<<10)).Post("/api/checkout", s.handleCheckout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(s.Identity, s.Logger))
			r.Get("/api/alerts", s.handleListAlerts)
			r.Get("/api/profile", s.handleProfile)
		})
	})
	return r
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	if len(s.Opts.AllowedOrigins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   s.Opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
