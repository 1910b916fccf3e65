package resolver

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the polling that follows a baseline read.
type Policy struct {
	MaxAttempts int           // polls after the baseline read
	Delay       time.Duration // wait before the second poll
	Freshness   time.Duration // an active record younger than this is the one just created
	Multiplier  float64       // 1 keeps the delay fixed
	Jitter      float64       // randomization factor, 0 disables
}

// DefaultPolicy polls 7 times, one second apart, and treats active records
// younger than three seconds as brand new.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 7,
		Delay:       1000 * time.Millisecond,
		Freshness:   3000 * time.Millisecond,
		Multiplier:  1.0,
		Jitter:      0,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Freshness < 0 {
		p.Freshness = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = 0
	}
	return p
}

// schedule returns the delay source for one resolution. It never stops on
// its own; MaxAttempts bounds the loop.
func (p Policy) schedule() backoff.BackOff {
	if p.Delay == 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxInterval = p.Delay * time.Duration(p.MaxAttempts)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
