package probe

import (
	"context"
	"sync"
)

// Target names one dependency and how to check it.
type Target struct {
	Name    string
	URL     string
	Checker Checker
}

type MultiChecker struct {
	Targets []Target
}

func NewMultiChecker(targets ...Target) *MultiChecker {
	return &MultiChecker{Targets: targets}
}

// Run checks every target concurrently. Results keep target order and carry
// the target name.
func (m *MultiChecker) Run(ctx context.Context) []CheckResult {
	results := make([]CheckResult, len(m.Targets))
	var wg sync.WaitGroup
	for i, t := range m.Targets {
		i, t := i, t
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := t.Checker.Check(ctx, t.URL)
			r.Name = t.Name
			results[i] = r
		}()
	}
	wg.Wait()
	return results
}

// Healthy reports whether every result succeeded.
func Healthy(results []CheckResult) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}
