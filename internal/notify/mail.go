package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var ErrNoMailer = errors.New("no mailer configured")

// Message is one outgoing HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

type Mailer interface {
	Mail(ctx context.Context, msg Message) error
}

// Fallback tries each mailer in order and stops at the first success.
type Fallback []Mailer

func (f Fallback) Mail(ctx context.Context, msg Message) error {
	var err error
	tried := 0
	for _, m := range f {
		if m == nil {
			continue
		}
		tried++
		e := m.Mail(ctx, msg)
		if e == nil {
			return nil
		}
		err = multierr.Append(err, e)
		if ctx.Err() != nil {
			break
		}
	}
	if tried == 0 {
		return ErrNoMailer
	}
	return fmt.Errorf("mail %s: %w", msg.To, err)
}
