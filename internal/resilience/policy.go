// Package resilience wraps outbound calls to external services with a
// uniform retry and circuit-breaker contract. The executor is agnostic to
// what an operation does; policies are looked up by service category.
package resilience

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/dialerd/internal/config"
)

// Strategy selects how backoff delays grow between attempts.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
)

// Policy is an immutable per-category retry policy.
type Policy struct {
	// MaxRetries is the total number of attempts allowed.
	MaxRetries int

	// BaseDelay seeds the backoff computation.
	BaseDelay time.Duration

	// Strategy selects the backoff curve.
	Strategy Strategy

	// Timeout bounds each individual attempt. Zero means no per-attempt
	// timeout.
	Timeout time.Duration
}

// DefaultPolicy is used for categories with no configured policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Strategy:   StrategyExponential,
		Timeout:    10 * time.Second,
	}
}

// PolicyFromConfig converts a config entry into a Policy.
func PolicyFromConfig(rc config.RetryConfig) (Policy, error) {
	s := Strategy(rc.Strategy)
	switch s {
	case StrategyExponential, StrategyLinear, StrategyFixed:
	default:
		return Policy{}, fmt.Errorf("unknown retry strategy %q", rc.Strategy)
	}
	return Policy{
		MaxRetries: rc.MaxRetries,
		BaseDelay:  rc.BaseDelay.Duration(),
		Strategy:   s,
		Timeout:    rc.Timeout.Duration(),
	}, nil
}

// Delay returns the backoff delay after the given failed attempt (1-based).
//
//	exponential: base * 2^(attempt-1)
//	linear:      base * attempt
//	fixed:       base
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch p.Strategy {
	case StrategyLinear:
		return p.BaseDelay * time.Duration(attempt)
	case StrategyFixed:
		return p.BaseDelay
	default:
		return p.BaseDelay << uint(attempt-1)
	}
}
