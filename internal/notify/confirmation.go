package notify

import (
	"bytes"
	"context"
	"html/template"
)

const ConfirmationSubject = "Your eating.london credits are now active"

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>eating.london - Credit Confirmation</title>
</head>
<body style="font-family: Inter, -apple-system, sans-serif; background-color: #f9f9f9; color: #333; margin: 0; padding: 32px;">
  <table width="100%" style="max-width: 600px; margin: 0 auto; background: #fff; border-radius: 12px; padding: 32px;">
    <tr>
      <td align="center">
        <h2 style="margin: 0 0 12px 0;">Thank you for your purchase</h2>
        <p style="margin: 0 0 16px 0; color: #666;">Your alert credits have now been <strong>added to your account</strong>.</p>
        <p style="font-size: 16px; margin: 0 0 24px 0;">You now have <strong>{{.Credits}}</strong> available {{.Noun}}.</p>
        <a href="{{.DashboardURL}}" style="background-color: #000; color: #fff; text-decoration: none; padding: 12px 24px; border-radius: 8px; display: inline-block;">View My Dashboard</a>
      </td>
    </tr>
  </table>
</body>
</html>
`))

const DashboardURL = "https://app.eating.london/dashboard"

// CreditNoun is "credit" for exactly one, "credits" otherwise.
func CreditNoun(credits int) string {
	if credits == 1 {
		return "credit"
	}
	return "credits"
}

// Confirmation renders the purchase confirmation for a credit grant.
func Confirmation(to string, credits int) (Message, error) {
	var buf bytes.Buffer
	err := confirmationTmpl.Execute(&buf, struct {
		Credits      int
		Noun         string
		DashboardURL string
	}{credits, CreditNoun(credits), DashboardURL})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: ConfirmationSubject, HTML: buf.String()}, nil
}

// Confirmer sends purchase confirmations through a Mailer.
type Confirmer struct {
	Mailer Mailer
}

func (c Confirmer) SendConfirmation(ctx context.Context, email string, credits int) error {
	if c.Mailer == nil {
		return ErrNoMailer
	}
	msg, err := Confirmation(email, credits)
	if err != nil {
		return err
	}
	return c.Mailer.Mail(ctx, msg)
}
