package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/hamed0406/tablealert/internal/domain"
)

const testSecret = "whsec_test"

func sign(t *testing.T, payload string) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Header
}

const completed = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "created": 1727784000,
  "livemode": false,
  "data": {"object": {
    "id": "cs_1",
    "object": "checkout.session",
    "customer_email": "",
    "customer_details": {"email": "Buyer@Example.com"},
    "metadata": {"price_id": "price_three", "alert_email": "alert@example.com"}
  }}
}`

func TestVerify_DecodesCompletedSession(t *testing.T) {
	v := NewVerifier(testSecret, 0)
	ev, err := v.Verify([]byte(completed), sign(t, completed))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, domain.EventCheckoutCompleted, ev.Type)
	assert.Equal(t, "Buyer@Example.com", ev.CustomerEmail)
	assert.Equal(t, "price_three", ev.PriceID)
	assert.Equal(t, int64(1727784000), ev.Created.Unix())
}

func TestVerify_RejectsBadSignature(t *testing.T) {
	v := NewVerifier(testSecret, 0)
	_, err := v.Verify([]byte(completed), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// body altered after signing
	_, err = v.Verify([]byte(completed+" "), sign(t, completed))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = NewVerifier("", 0).Verify([]byte(completed), sign(t, completed))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_OtherTypesCarryNoSession(t *testing.T) {
	payload := `{"id":"evt_2","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","object":"invoice"}}}`
	ev, err := NewVerifier(testSecret, 0).Verify([]byte(payload), sign(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "invoice.paid", ev.Type)
	assert.Empty(t, ev.CustomerEmail)
	assert.Empty(t, ev.PriceID)
}

func TestSessionEmail_Precedence(t *testing.T) {
	s := &stripe.CheckoutSession{
		CustomerEmail:   "explicit@example.com",
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{Email: "details@example.com"},
		Metadata:        map[string]string{"alert_email": "meta@example.com"},
	}
	assert.Equal(t, "explicit@example.com", sessionEmail(s))

	s.CustomerEmail = ""
	assert.Equal(t, "details@example.com", sessionEmail(s))

	s.CustomerDetails = nil
	assert.Equal(t, "meta@example.com", sessionEmail(s))

	s.Metadata["alert_email"] = "unknown"
	assert.Empty(t, sessionEmail(s))
}

// ---- checkout ----

type fakeSessions struct {
	got *stripe.CheckoutSessionParams
	err error
}

func (f *fakeSessions) New(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.got = p
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{URL: "https://checkout.stripe.test/c/cs_1"}, nil
}

func testCheckout(s SessionCreator) *Checkout {
	return NewCheckout(s, domain.NewPriceTable("price_one", "price_three", "price_five", "price_unl"), "https://app.example.com/")
}

func TestCheckout_UnlimitedIsSubscription(t *testing.T) {
	c := testCheckout(&fakeSessions{})

	p, err := c.Params(CheckoutRequest{PriceID: "price_unl", Email: " Foo@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), *p.Mode)
	assert.Equal(t, "foo@example.com", p.Metadata["alert_email"])
	assert.Equal(t, "price_unl", p.Metadata["price_id"])

	p, err = c.Params(CheckoutRequest{PriceID: "price_three"})
	require.NoError(t, err)
	assert.Equal(t, string(stripe.CheckoutSessionModePayment), *p.Mode)
	assert.Equal(t, "unknown", p.Metadata["alert_email"])
	assert.Nil(t, p.Customer)
}

func TestCheckout_ParamsShape(t *testing.T) {
	p, err := testCheckout(&fakeSessions{}).Params(CheckoutRequest{PriceID: "price_one", CustomerID: "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/thank-you", *p.SuccessURL)
	assert.Equal(t, "https://app.example.com/upgrade?status=cancel", *p.CancelURL)

	p, err = testCheckout(&fakeSessions{}).Params(CheckoutRequest{PriceID: "price_one", Handoff: "h-1"})
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/upgrade?handoff=h-1&status=cancel", *p.CancelURL)
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, "price_one", *p.LineItems[0].Price)
	assert.Equal(t, int64(1), *p.LineItems[0].Quantity)
	require.Len(t, p.PaymentMethodTypes, 2)
	assert.Equal(t, "card", *p.PaymentMethodTypes[0])
	assert.Equal(t, "link", *p.PaymentMethodTypes[1])
	assert.Equal(t, "cus_1", *p.Customer)
}

func TestCheckout_Create(t *testing.T) {
	fs := &fakeSessions{}
	url, err := testCheckout(fs).Create(context.Background(), CheckoutRequest{PriceID: "price_five"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/c/cs_1", url)
	require.NotNil(t, fs.got)
	assert.NotNil(t, fs.got.Context)

	_, err = testCheckout(fs).Create(context.Background(), CheckoutRequest{})
	assert.ErrorIs(t, err, ErrMissingPrice)

	_, err = testCheckout(&fakeSessions{err: errors.New("card_declined")}).Create(context.Background(), CheckoutRequest{PriceID: "price_one"})
	assert.Error(t, err)
}
