package probe

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryChecker re-runs Inner until it succeeds or Attempts are used up,
// waiting Backoff between tries. Cancelling ctx stops the series.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

var errCheckFailed = errors.New("check failed")

func (r *RetryChecker) Check(ctx context.Context, target string) CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var (
		last  CheckResult
		tries int
	)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Backoff), uint64(attempts-1)),
		ctx,
	)
	_ = backoff.Retry(func() error {
		tries++
		last = r.Inner.Check(ctx, target)
		if last.Success {
			return nil
		}
		return errCheckFailed
	}, policy)

	if !last.Success && tries > 1 {
		last.Message += " (after retries)"
	}
	return last
}
