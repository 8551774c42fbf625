package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// CheckAll pings every dependency within timeout and reports each failure.
func CheckAll(ctx context.Context, timeout time.Duration, deps ...Pinger) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome, len(deps))
	for _, dep := range deps {
		go func(p Pinger) {
			results <- outcome{name: p.Name(), err: p.Ping(ctx)}
		}(dep)
	}

	failures := make(map[string]error)
	for range deps {
		r := <-results
		if r.err != nil {
			failures[r.name] = r.err
		}
	}
	return failures
}

// JoinFailures flattens CheckAll output into one error, nil when healthy.
func JoinFailures(failures map[string]error) error {
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failures))
	for name, err := range failures {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errors.Join(errs...)
}
