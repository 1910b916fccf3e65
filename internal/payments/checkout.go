package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"

	"github.com/hamed0406/tablealert/internal/domain"
)

// unknownEmail marks a checkout started without an alert email.
const unknownEmail = "unknown"

var ErrMissingPrice = errors.New("payments: missing price id")

// SessionCreator is the slice of the Stripe checkout API we use.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewSessionClient returns a Stripe checkout session client bound to key.
func NewSessionClient(key string) SessionCreator {
	return &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: key}
}

// CheckoutRequest starts a hosted checkout. Email is stored as given
// (lowercased) in metadata, like the alert flow that produced it. Handoff
// brings a cancelled buyer back to the plan chooser.
type CheckoutRequest struct {
	PriceID    string `json:"priceId" validate:"required"`
	Email      string `json:"email" validate:"max=320"`
	CustomerID string `json:"customerId,omitempty"`
	Handoff    string `json:"handoff,omitempty" validate:"max=128"`
}

type Checkout struct {
	Sessions SessionCreator
	Prices   domain.PriceTable
	SiteURL  string
}

func NewCheckout(sessions SessionCreator, prices domain.PriceTable, siteURL string) *Checkout {
	return &Checkout{Sessions: sessions, Prices: prices, SiteURL: strings.TrimRight(siteURL, "/")}
}

// Create opens a hosted checkout session and returns its URL.
func (c *Checkout) Create(ctx context.Context, req CheckoutRequest) (string, error) {
	params, err := c.Params(req)
	if err != nil {
		return "", err
	}
	params.Context = ctx
	sess, err := c.Sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// Params builds the session parameters. The unlimited plan is a
// subscription; every other pack is a one-off payment. The provider email
// field is left empty on purpose so Link does not prompt a login.
func (c *Checkout) Params(req CheckoutRequest) (*stripe.CheckoutSessionParams, error) {
	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		return nil, ErrMissingPrice
	}

	mode := stripe.CheckoutSessionModePayment
	if c.Prices.IsSubscription(priceID) {
		mode = stripe.CheckoutSessionModeSubscription
	}

	alertEmail := strings.ToLower(strings.TrimSpace(req.Email))
	if alertEmail == "" {
		alertEmail = unknownEmail
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(mode)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card", "link"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(c.SiteURL + "/thank-you"),
		CancelURL:  stripe.String(c.cancelURL(req.Handoff)),
	}
	if id := strings.TrimSpace(req.CustomerID); id != "" {
		params.Customer = stripe.String(id)
	}
	params.AddMetadata("price_id", priceID)
	params.AddMetadata("alert_email", alertEmail)
	return params, nil
}

func (c *Checkout) cancelURL(handoff string) string {
	q := url.Values{"status": {"cancel"}}
	if id := strings.TrimSpace(handoff); id != "" {
		q.Set("handoff", id)
	}
	return c.SiteURL + "/upgrade?" + q.Encode()
}
