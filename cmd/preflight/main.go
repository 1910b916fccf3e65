// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hamed0406/tablealert/internal/config"
	"github.com/hamed0406/tablealert/internal/probe"
)

type level int

const (
	levelOK level = iota
	levelWarn
	levelFail
)

type finding struct {
	Level level
	Msg   string
}

// hostResolver returns a DNS class for host, see probe.DNSResolves.
type hostResolver func(host string) string

func main() {
	cfg := config.FromEnv()
	dns := probe.NewDNSChecker()
	resolve := func(host string) string {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return dns.Lookup(ctx, host).Class
	}
	if !report(os.Stdout, preflight(cfg, resolve)) {
		os.Exit(1)
	}
}

func preflight(cfg config.Config, resolve hostResolver) []finding {
	var out []finding
	fail := func(msg string) { out = append(out, finding{levelFail, msg}) }
	warn := func(msg string) { out = append(out, finding{levelWarn, msg}) }
	ok := func(msg string) { out = append(out, finding{levelOK, msg}) }

	switch {
	case cfg.StripeWebhookSecret == "":
		fail("STRIPE_WEBHOOK_SECRET is empty (every webhook will be rejected).")
	case !strings.HasPrefix(cfg.StripeWebhookSecret, "whsec_"):
		warn("STRIPE_WEBHOOK_SECRET does not start with whsec_.")
	default:
		ok("STRIPE_WEBHOOK_SECRET present")
	}

	switch {
	case cfg.StripeSecretKey == "":
		fail("STRIPE_SECRET_KEY is empty (checkout sessions cannot be created).")
	case strings.HasPrefix(cfg.StripeSecretKey, "sk_test_"):
		warn("STRIPE_SECRET_KEY is a test-mode key.")
	default:
		ok("STRIPE_SECRET_KEY present")
	}

	prices := map[string]string{
		"STRIPE_PRICE_ONE_ALERT":    cfg.PriceOneAlert,
		"STRIPE_PRICE_THREE_ALERTS": cfg.PriceThreeAlerts,
		"STRIPE_PRICE_FIVE_ALERTS":  cfg.PriceFiveAlerts,
		"STRIPE_PRICE_UNLIMITED":    cfg.PriceUnlimited,
	}
	var missing []string
	for _, name := range []string{"STRIPE_PRICE_ONE_ALERT", "STRIPE_PRICE_THREE_ALERTS", "STRIPE_PRICE_FIVE_ALERTS", "STRIPE_PRICE_UNLIMITED"} {
		if strings.TrimSpace(prices[name]) == "" {
			missing = append(missing, name)
		}
	}
	switch {
	case len(missing) == len(prices):
		fail("no STRIPE_PRICE_* ids set (no purchase can grant credits).")
	case len(missing) > 0:
		warn("unset price ids grant 0 credits: " + strings.Join(missing, ","))
	default:
		ok(fmt.Sprintf("%d price ids configured", len(cfg.Prices())))
	}
	if n := len(cfg.Prices()); len(missing) == 0 && n < len(prices) {
		warn("two or more STRIPE_PRICE_* variables share the same id.")
	}

	for _, v := range [][2]string{
		{"SITE_URL", cfg.SiteURL},
		{"ALERTS_API_BASE_URL", cfg.AlertsAPIBaseURL},
		{"CREATE_ALERT_URL", cfg.CreateAlertURL},
	} {
		name, raw := v[0], v[1]
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			fail(name + " is not an absolute http(s) URL: " + raw)
			continue
		}
		if u.Scheme != "https" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
			warn(name + " is not https.")
		}
		if name == "ALERTS_API_BASE_URL" {
			if class := resolve(u.Hostname()); class != probe.DNSResolves {
				fail(name + " host does not resolve: " + class)
				continue
			}
		}
		ok(name + "=" + raw)
	}

	if cfg.SendGridAPIKey == "" && cfg.SMTPHost == "" {
		warn("no SENDGRID_API_KEY or SMTP_HOST; confirmation emails will not be sent.")
	} else {
		ok("mail provider configured")
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
		warn("SUPABASE_URL/SUPABASE_ANON_KEY empty; /api/alerts and /api/profile will answer 401.")
	}

	if cfg.DatabaseURL == "" && (cfg.SupabaseURL == "" || cfg.SupabaseServiceRoleKey == "") {
		warn("no DATABASE_URL or Supabase service key; credits are kept in memory.")
	} else {
		ok("credit store configured")
	}
	if cfg.CascadeMode == config.CascadeInline {
		fail("CASCADE_MODE=inline holds webhook responses until mail is sent; the API server refuses it.")
	}
	if cfg.CascadeMode == config.CascadeOutbox && cfg.DatabaseURL == "" {
		warn("CASCADE_MODE=outbox without DATABASE_URL keeps the queue in memory.")
	}
	if cfg.RedisAddr == "" {
		warn("REDIS_ADDR empty; checkout handoffs are lost on restart and not shared between instances.")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
	return out
}

// report prints findings and returns false if any failed.
func report(w io.Writer, fs []finding) bool {
	passed := true
	for _, f := range fs {
		switch f.Level {
		case levelFail:
			passed = false
			fmt.Fprintln(w, "✖", f.Msg)
		case levelWarn:
			fmt.Fprintln(w, "⚠", f.Msg)
		default:
			fmt.Fprintln(w, "✔", f.Msg)
		}
	}
	if passed {
		fmt.Fprintln(w, "✔ preflight passed")
	}
	return passed
}
