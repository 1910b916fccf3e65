// Package probe checks that the service's downstream dependencies answer.
package probe

import (
	"context"
	"time"
)

// CheckResult is the unified result of a single probe.
// StatusCode is 0 for transport, DNS and ping errors.
type CheckResult struct {
	Name       string  `json:"name"`
	Success    bool    `json:"success"`
	Message    string  `json:"message,omitempty"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMS  float64 `json:"latency_ms"`
}

// Checker performs a single check for a given target.
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}

// PingChecker adapts a client's Ping (database pool, redis, mongo) into a
// Checker. The target is ignored.
type PingChecker struct {
	Name string
	Ping func(ctx context.Context) error
}

func (p PingChecker) Check(ctx context.Context, _ string) CheckResult {
	start := time.Now()
	err := p.Ping(ctx)
	res := CheckResult{Name: p.Name, Success: err == nil, LatencyMS: sinceMS(start), Message: "ok"}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

func sinceMS(start time.Time) float64 { return time.Since(start).Seconds() * 1000 }
