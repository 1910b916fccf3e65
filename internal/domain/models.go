package domain

import (
	"net/url"
	"strings"
	"time"
)

// AlertStatus is the server-assigned lifecycle state of a monitoring request.
type AlertStatus string

const (
	StatusNone           AlertStatus = "none"
	StatusActive         AlertStatus = "active"
	StatusPendingPayment AlertStatus = "pending_payment"
	StatusMatched        AlertStatus = "matched"
	StatusNotified       AlertStatus = "notified"
	StatusExpired        AlertStatus = "expired"
)

// ParseStatus maps a raw status string onto an AlertStatus. Empty input is
// treated as "none", the same way the alerts API signals a missing record.
func ParseStatus(s string) AlertStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StatusNone
	}
	return AlertStatus(s)
}

// AlertRecord is the latest alert for an email as reported by the alerts API.
// CreatedAt is kept as the raw string the API returned; it is compared
// verbatim as a change fingerprint and parsed only to compute age.
type AlertRecord struct {
	Status    AlertStatus `json:"status"`
	CreatedAt string      `json:"createdAt,omitempty"`
}

// CreatedTime parses CreatedAt. ok is false when it is empty or unparseable.
func (a AlertRecord) CreatedTime() (t time.Time, ok bool) {
	if a.CreatedAt == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z07:00"} {
		if t, err := time.Parse(layout, a.CreatedAt); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Age returns how old the record is relative to now. A record without a
// parseable creation time is treated as created at the Unix epoch, so it is
// never considered fresh.
func (a AlertRecord) Age(now time.Time) time.Duration {
	t, ok := a.CreatedTime()
	if !ok {
		t = time.Unix(0, 0)
	}
	return now.Sub(t)
}

// Alert is one document of the alert store as shown on the dashboard.
type Alert struct {
	ID            string     `json:"_id" bson:"_id"`
	Email         string     `json:"email" bson:"email"`
	Restaurant    string     `json:"restaurant,omitempty" bson:"restaurant,omitempty"`
	Restaurants   []string   `json:"restaurants,omitempty" bson:"restaurants,omitempty"`
	DateRange     *Range     `json:"dateRange,omitempty" bson:"dateRange,omitempty"`
	TimeRange     *Range     `json:"timeRange,omitempty" bson:"timeRange,omitempty"`
	PreferredDate string     `json:"preferredDate,omitempty" bson:"preferredDate,omitempty"`
	PreferredTime string     `json:"preferredTime,omitempty" bson:"preferredTime,omitempty"`
	Status        string     `json:"status,omitempty" bson:"status,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	MatchedAt     *time.Time `json:"matchedAt,omitempty" bson:"matchedAt,omitempty"`
}

type Range struct {
	Start string `json:"start,omitempty" bson:"start,omitempty"`
	End   string `json:"end,omitempty" bson:"end,omitempty"`
}

// Profile is the account view of a purchaser.
type Profile struct {
	Email   string `json:"email"`
	Credits int    `json:"credits"`
}

// NormalizeEmail trims, lowercases and URL-decodes an email taken from a
// query string or path segment. A value that fails to decode is kept as is.
func NormalizeEmail(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if dec, err := url.PathUnescape(s); err == nil {
		s = dec
	}
	return strings.TrimSpace(s)
}
