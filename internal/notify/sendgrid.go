package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGrid struct {
	From   string
	client *sendgrid.Client
}

// NewSendGrid returns nil when no API key is configured.
func NewSendGrid(apiKey, from string) *SendGrid {
	if apiKey == "" {
		return nil
	}
	return &SendGrid{From: from, client: sendgrid.NewSendClient(apiKey)}
}

// WithBaseURL points the client at another API host.
func (s *SendGrid) WithBaseURL(u string) *SendGrid {
	s.client.BaseURL = u
	return s
}

func (s *SendGrid) Mail(ctx context.Context, msg Message) error {
	m := mail.NewSingleEmail(mail.NewEmail("eating.london", s.From), msg.Subject, mail.NewEmail("", msg.To), "", msg.HTML)
	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
