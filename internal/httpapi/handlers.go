package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/httpapi/middleware"
	"github.com/hamed0406/tablealert/internal/httpapi/problem"
	"github.com/hamed0406/tablealert/internal/payments"
	"github.com/hamed0406/tablealert/internal/probe"
	"github.com/hamed0406/tablealert/internal/reconcile"
	"github.com/hamed0406/tablealert/internal/repo"
	"github.com/hamed0406/tablealert/internal/resolver"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Health ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.Readiness == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	res, at, ok := s.Readiness.Snapshot()
	if !ok {
		problem.Write(w, http.StatusServiceUnavailable, "not ready", "dependencies not checked yet", nil)
		return
	}
	status, code := "ready", http.StatusOK
	if !probe.Healthy(res) {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checked_at": at, "checks": res})
}

// --- Payment webhook ---

// handleWebhook always acknowledges with 200 {"received":true}; the outcome
// is only logged.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBytes+1))
	if err != nil {
		s.Logger.Warn("webhook_read_error", zap.Error(err))
	}
	if len(payload) > MaxWebhookBytes {
		s.Logger.Warn("webhook_too_large", zap.Int("limit", MaxWebhookBytes))
		payload = nil
	}

	out := reconcile.Rejected
	if payload != nil && s.Webhooks != nil {
		out = s.Webhooks.Handle(r.Context(), payload, r.Header.Get(payments.SignatureHeader))
	}
	s.Logger.Info("webhook_handled", zap.String("outcome", string(out)))
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// --- Alert-submitted resolver page ---

func (s *Server) handleAlertSubmitted(w http.ResponseWriter, r *http.Request) {
	in := resolver.Input{
		QueryEmail: r.URL.Query().Get("email"),
		PathEmail:  chi.URLParam(r, "email"),
	}
	d := s.Resolver.Resolve(r.Context(), in)
	if d.Action == resolver.Redirect {
		target := "/upgrade"
		if d.HandoffID != "" {
			target += "?handoff=" + url.QueryEscape(d.HandoffID)
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	renderPage(w, s.Logger, alertCreatedPage, struct{ Status string }{string(d.Status)})
}

// --- Upgrade and thank-you pages ---

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("handoff")
	if s.Handoffs == nil || id == "" {
		http.Redirect(w, r, s.Opts.CreateAlertURL, http.StatusSeeOther)
		return
	}
	rec, err := s.Handoffs.Lookup(r.Context(), id)
	if err != nil {
		s.Logger.Info("upgrade_no_handoff", zap.String("handoff", id), zap.Error(err))
		http.Redirect(w, r, s.Opts.CreateAlertURL, http.StatusSeeOther)
		return
	}
	renderPage(w, s.Logger, upgradePage, struct {
		Email     string
		Handoff   string
		Cancelled bool
		Plans     Plans
	}{rec.Email, id, r.URL.Query().Get("status") == "cancel", s.Prices})
}

func (s *Server) handleThankYou(w http.ResponseWriter, r *http.Request) {
	renderPage(w, s.Logger, paymentThanksPage, nil)
}

// --- Checkout ---

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req payments.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}
	req.PriceID = strings.TrimSpace(req.PriceID)
	req.Email = strings.TrimSpace(req.Email)
	req.Handoff = strings.TrimSpace(req.Handoff)
	if err := s.validate.Struct(req); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid checkout request", "", fieldErrors(err))
		return
	}

	u, err := s.Checkout.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, payments.ErrMissingPrice) {
			problem.Write(w, http.StatusBadRequest, "invalid checkout request", err.Error(), nil)
			return
		}
		s.Logger.Error("checkout_error", zap.String("price_id", req.PriceID), zap.Error(err))
		problem.Write(w, http.StatusInternalServerError, "checkout failed", err.Error(), nil)
		return
	}
	s.Logger.Info("checkout_created", zap.String("price_id", req.PriceID), zap.String("email", req.Email))
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

var jsonNames = map[string]string{"PriceID": "priceId", "Email": "email", "CustomerID": "customerId", "Handoff": "handoff"}

func fieldErrors(err error) map[string][]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string][]string{"_": {err.Error()}}
	}
	out := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		name := jsonNames[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		out[name] = append(out[name], fe.Tag())
	}
	return out
}

// --- Signed-in user ---

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	email := middleware.UserEmail(r.Context())
	alerts, err := s.Alerts.ListByEmail(r.Context(), email)
	if err != nil {
		s.Logger.Error("alerts_list_error", zap.String("email", email), zap.Error(err))
		problem.Write(w, http.StatusInternalServerError, "server error", "could not load alerts", nil)
		return
	}
	s.Logger.Info("alerts_listed", zap.String("email", email), zap.Int("count", len(alerts)))
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	email := middleware.UserEmail(r.Context())
	n, err := s.Credits.Credits(r.Context(), email)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.Logger.Error("profile_error", zap.String("email", email), zap.Error(err))
		problem.Write(w, http.StatusInternalServerError, "server error", "could not load profile", nil)
		return
	}
	writeJSON(w, http.StatusOK, domain.Profile{Email: email, Credits: n})
}

// --- Reservation redirect ---

const sevenRoomsBase = "https://www.sevenrooms.com/explore/"

func (s *Server) handleReservationRedirect(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	q := url.Values{}
	if d := r.URL.Query().Get("date"); d != "" {
		q.Set("date", d)
	}
	party := r.URL.Query().Get("party_size")
	if party == "" {
		party = "2"
	}
	q.Set("party_size", party)

	target := sevenRoomsBase + url.PathEscape(slug) + "/reservations/create/search?" + q.Encode()
	s.Logger.Info("reservation_redirect", zap.String("slug", slug), zap.String("target", target))
	http.Redirect(w, r, target, http.StatusFound)
}
