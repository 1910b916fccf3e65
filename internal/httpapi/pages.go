package httpapi

import (
	"bytes"
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

const layoutHead = `<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8" /><meta name="viewport" content="width=device-width, initial-scale=1" />
<title>eating.london</title></head>
<body style="font-family: Inter, -apple-system, sans-serif; background: #fafafa; color: #333; text-align: center; padding: 48px 24px;">`

const layoutFoot = `<p style="margin-top: 40px; font-size: 12px; color: #999;">eating.london</p></body></html>`

var alertCreatedPage = template.Must(template.New("alert-created").Parse(layoutHead + `
<main style="max-width: 420px; margin: 0 auto; background: #fff; border-radius: 16px; padding: 32px;">
  <h1>Alert Created</h1>
  <p>Thank you! Your alert has been created.</p>
  <p>We'll notify you as soon as a table becomes available.</p>
  <p data-status="{{.Status}}" style="font-size: 12px; color: #999;">Status: {{.Status}}</p>
  <a href="/dashboard">View Your Dashboard</a>
</main>` + layoutFoot))

var upgradePage = template.Must(template.New("upgrade").Parse(layoutHead + `
<main style="max-width: 960px; margin: 0 auto;">
  <h1>Never miss your next reservation</h1>
  {{if .Cancelled}}<p>Checkout was cancelled. You can pick a plan whenever you are ready.</p>{{end}}
  <p>You've used your free Alert. Add more credits and we'll notify you when your favourite London restaurants open up tables.</p>
  <p>Using alert email <strong>{{.Email}}</strong></p>
  <section>
    {{if .Plans.Three}}<button data-price="{{.Plans.Three}}">Buy 3 Alerts</button>{{end}}
    {{if .Plans.Five}}<button data-price="{{.Plans.Five}}">Buy 5 Alerts</button>{{end}}
    {{if .Plans.Unlimited}}<button data-price="{{.Plans.Unlimited}}">Go Unlimited</button>{{end}}
  </section>
</main>
<script>
document.querySelectorAll('button[data-price]').forEach(function (b) {
  b.addEventListener('click', async function () {
    const res = await fetch('/api/checkout', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify({priceId: b.dataset.price, email: {{.Email}}, handoff: {{.Handoff}}})
    });
    const body = await res.json();
    if (body.url) window.location.href = body.url;
  });
});
</script>` + layoutFoot))

var paymentThanksPage = template.Must(template.New("thank-you").Parse(layoutHead + `
<main style="max-width: 420px; margin: 0 auto; background: #fff; border-radius: 16px; padding: 32px;">
  <h1>Payment Successful</h1>
  <p>Thank you for your purchase! Your alert credits have been applied to your account.</p>
  <p>Any pending alerts have now been activated.</p>
  <a href="/dashboard">View Your Dashboard</a>
</main>` + layoutFoot))

func renderPage(w http.ResponseWriter, logger *zap.Logger, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		logger.Error("render_error", zap.String("template", t.Name()), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
