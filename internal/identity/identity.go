// Package identity turns a bearer access token into the signed-in user's email.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrUnauthorized = errors.New("unauthorized")

type Resolver interface {
	EmailForToken(ctx context.Context, token string) (string, error)
}

// SupabaseAuth validates tokens against the auth server's /auth/v1/user.
type SupabaseAuth struct {
	BaseURL string
	AnonKey string
	HTTP    *http.Client
}

func NewSupabaseAuth(baseURL, anonKey string) *SupabaseAuth {
	return &SupabaseAuth{
		BaseURL: strings.TrimRight(baseURL, "/"),
		AnonKey: anonKey,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *SupabaseAuth) EmailForToken(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("apikey", s.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth user: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrUnauthorized
	case resp.StatusCode/100 != 2:
		return "", fmt.Errorf("auth user: status %d", resp.StatusCode)
	}

	var user struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("auth user: decode: %w", err)
	}
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" {
		return "", ErrUnauthorized
	}
	return email, nil
}

// Static maps fixed tokens to emails. Used by tests and local runs.
type Static map[string]string

func (s Static) EmailForToken(_ context.Context, token string) (string, error) {
	if e, ok := s[token]; ok {
		return e, nil
	}
	return "", ErrUnauthorized
}
