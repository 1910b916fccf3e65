package alertsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/tablealert/internal/domain"
)

// Client talks to the external alerts API that owns alert records.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type latestResponse struct {
	Status    string  `json:"status"`
	CreatedAt *string `json:"createdAt"`
}

// Latest returns the most recent alert for email. A missing record comes back
// as status "none" with an empty CreatedAt.
func (c *Client) Latest(ctx context.Context, email string) (domain.AlertRecord, error) {
	u := c.BaseURL + "/api/alerts/latest?email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.AlertRecord{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.AlertRecord{}, fmt.Errorf("latest alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return domain.AlertRecord{}, fmt.Errorf("latest alert: status %d", resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.AlertRecord{}, fmt.Errorf("latest alert: decode: %w", err)
	}
	rec := domain.AlertRecord{Status: domain.ParseStatus(body.Status)}
	if body.CreatedAt != nil {
		rec.CreatedAt = *body.CreatedAt
	}
	return rec, nil
}

// ActivationResult is whatever acknowledgment the alerts API sends back.
type ActivationResult map[string]any

// ActivatePending asks the alerts API to activate alerts that were waiting
// on payment for email. Non-2xx responses are errors.
func (c *Client) ActivatePending(ctx context.Context, email string) (ActivationResult, error) {
	body, _ := json.Marshal(map[string]string{"email": email})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/alerts/activate-pending", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("activate pending: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("activate pending: status %d", resp.StatusCode)
	}

	var out ActivationResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return nil, fmt.Errorf("activate pending: decode: %w", err)
	}
	return out, nil
}
