package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/hamed0406/tablealert/internal/domain"
)

// SignatureHeader carries the provider signature of a webhook delivery.
const SignatureHeader = "Stripe-Signature"

var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// Verifier checks webhook signatures against the endpoint secret and turns
// verified deliveries into domain events.
type Verifier struct {
	Secret    string
	Tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{Secret: secret, Tolerance: tolerance}
}

// Verify must be given the body exactly as received. Any verification
// failure, including a missing secret, wraps ErrInvalidSignature.
func (v *Verifier) Verify(payload []byte, signature string) (domain.PaymentEvent, error) {
	if v.Secret == "" {
		return domain.PaymentEvent{}, fmt.Errorf("%w: no endpoint secret configured", ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.Secret, webhook.ConstructEventOptions{
		Tolerance:                v.Tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := domain.PaymentEvent{
		ID:       ev.ID,
		Type:     string(ev.Type),
		Livemode: ev.Livemode,
		Created:  time.Unix(ev.Created, 0).UTC(),
	}
	if out.Type != domain.EventCheckoutCompleted || ev.Data == nil {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		// Signed but undecodable: hand back the envelope, the missing email
		// makes the event a skip.
		return out, nil
	}
	out.CustomerEmail = sessionEmail(&sess)
	out.PriceID = strings.TrimSpace(sess.Metadata["price_id"])
	return out, nil
}

// sessionEmail prefers the explicit customer_email, then the collected
// customer details, then the alert email our checkout put in metadata.
func sessionEmail(s *stripe.CheckoutSession) string {
	if e := strings.TrimSpace(s.CustomerEmail); e != "" {
		return e
	}
	if s.CustomerDetails != nil {
		if e := strings.TrimSpace(s.CustomerDetails.Email); e != "" {
			return e
		}
	}
	if e := strings.TrimSpace(s.Metadata["alert_email"]); e != "" && !strings.EqualFold(e, unknownEmail) {
		return e
	}
	return ""
}
