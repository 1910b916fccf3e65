package probe

import (
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPChecker probes an endpoint with GET. Header is sent on every request,
// for gateways that want an api key even on health routes.
type HTTPChecker struct {
	Client *http.Client
	Header http.Header
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{Client: &http.Client{Timeout: timeout}, Header: http.Header{}}
}

// WithHeader sets one request header and returns h.
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	if h.Header == nil {
		h.Header = http.Header{}
	}
	h.Header.Set(key, value)
	return h
}

// Check counts any 2xx or 3xx answer as reachable.
func (h *HTTPChecker) Check(ctx context.Context, target string) CheckResult {
	res := CheckResult{Name: "HTTP"}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	for k, vs := range h.Header {
		req.Header[k] = vs
	}

	resp, err := h.Client.Do(req)
	res.LatencyMS = sinceMS(start)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	res.StatusCode, res.Message = resp.StatusCode, resp.Status
	res.Success = resp.StatusCode >= 200 && resp.StatusCode < 400
	return res
}
