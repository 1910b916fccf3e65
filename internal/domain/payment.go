package domain

import (
	"strings"
	"time"
)

// EventCheckoutCompleted is the only payment event type that changes state.
const EventCheckoutCompleted = "checkout.session.completed"

// UnlimitedCredits stands in for the unlimited plan.
const UnlimitedCredits = 9999

// PaymentEvent is the decoded, provider-neutral view of a verified webhook.
type PaymentEvent struct {
	ID            string
	Type          string
	CustomerEmail string
	PriceID       string
	Livemode      bool
	Created       time.Time
}

// Tier names a purchasable credit pack.
type Tier string

const (
	TierOne       Tier = "one"
	TierThree     Tier = "three"
	TierFive      Tier = "five"
	TierUnlimited Tier = "unlimited"
)

// Credits returns the number of credits a tier grants.
func (t Tier) Credits() int {
	switch t {
	case TierOne:
		return 1
	case TierThree:
		return 3
	case TierFive:
		return 5
	case TierUnlimited:
		return UnlimitedCredits
	default:
		return 0
	}
}

// PriceTable maps provider price identifiers to tiers.
type PriceTable map[string]Tier

// NewPriceTable builds the table from the configured price ids. Blank ids
// are dropped so an unset variable can never match an event.
func NewPriceTable(one, three, five, unlimited string) PriceTable {
	pt := PriceTable{}
	for id, tier := range map[string]Tier{one: TierOne, three: TierThree, five: TierFive, unlimited: TierUnlimited} {
		id = strings.TrimSpace(id)
		if id != "" {
			pt[id] = tier
		}
	}
	return pt
}

// Credits returns the credit quantity for a price id, 0 when unknown.
func (pt PriceTable) Credits(priceID string) int {
	tier, ok := pt[strings.TrimSpace(priceID)]
	if !ok {
		return 0
	}
	return tier.Credits()
}

// IsSubscription reports whether checkout for this price runs in
// subscription mode.
func (pt PriceTable) IsSubscription(priceID string) bool {
	return pt[strings.TrimSpace(priceID)] == TierUnlimited
}

// SideEffectKind names a deferred step that follows a credit increment.
type SideEffectKind string

const (
	SideEffectActivatePending  SideEffectKind = "activate_pending"
	SideEffectSendConfirmation SideEffectKind = "send_confirmation"
)

// SideEffect is one pending downstream step. Records are created next to the
// credit increment and worked off by the outbox worker.
type SideEffect struct {
	ID          string         `json:"id"`
	EventID     string         `json:"event_id"`
	Kind        SideEffectKind `json:"kind"`
	Email       string         `json:"email"`
	Credits     int            `json:"credits"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	NextRunAt   time.Time      `json:"next_run_at"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	FailedAt    *time.Time     `json:"failed_at,omitempty"`
}
