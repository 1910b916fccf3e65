// Package supabase is a CreditStore over the hosted profile store's REST
// API: the increment_credits RPC and the profiles table.
package supabase

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

	"github.com/hamed0406/tablealert/internal/repo"
)

var _ repo.CreditStore = (*Client)(nil)

type Client struct {
	BaseURL    string
	ServiceKey string
	HTTP       *http.Client
}

func New(baseURL, serviceKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}
}

// IncrementCredits calls the increment_credits RPC, which performs the
// increment inside the database.
func (c *Client) IncrementCredits(ctx context.Context, email string, amount int) error {
	body, _ := json.Marshal(map[string]any{"p_email": email, "p_amount": amount})
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/rpc/increment_credits", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("increment_credits: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("increment_credits: %s", apiError(resp))
	}
	return nil
}

func (c *Client) Credits(ctx context.Context, email string) (int, error) {
	q := url.Values{}
	q.Set("select", "credits")
	q.Set("email", "eq."+email)
	req, err := c.newRequest(ctx, http.MethodGet, "/rest/v1/profiles?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("read profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("read profile: %s", apiError(resp))
	}

	var rows []struct {
		Credits *int `json:"credits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return 0, fmt.Errorf("read profile: decode: %w", err)
	}
	if len(rows) == 0 {
		return 0, repo.ErrNotFound
	}
	if rows[0].Credits == nil {
		return 0, nil
	}
	return *rows[0].Credits, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func apiError(resp *http.Response) string {
	var e struct {
		Message string `json:"message"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(b, &e) == nil && e.Message != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, e.Message)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
