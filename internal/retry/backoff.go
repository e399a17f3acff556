package retry

import "time"

// Strategy selects how the backoff delay grows with the retry count.
type Strategy string

const (
	// StrategyExponential grows the delay geometrically with retry count.
	StrategyExponential Strategy = "exponential_backoff"
	// StrategyLinear grows the delay linearly with retry count.
	StrategyLinear Strategy = "linear_backoff"
	// StrategyFixed uses a constant delay.
	StrategyFixed Strategy = "fixed_delay"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyExponential, StrategyLinear, StrategyFixed:
		return true
	default:
		return false
	}
}

// MaxAttempts is the hard ceiling on attempts per unit of work,
// regardless of configured retry counts.
const MaxAttempts = 10

// Policy holds the retry configuration for one unit of work.
type Policy struct {
	// Strategy selects the backoff curve.
	Strategy Strategy
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay. Zero means uncapped.
	MaxDelay time.Duration
	// MaxRetries caps retries. Attempts never exceed MaxAttempts.
	MaxRetries int
}

// Delay computes the backoff delay before the given retry.
// retryCount is zero-based: the delay before the first retry uses 0.
func (p *Policy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	var d time.Duration
	switch p.Strategy {
	case StrategyLinear:
		d = base * time.Duration(retryCount+1)
	case StrategyFixed:
		d = base
	default:
		// Exponential is the default for unknown strategies.
		shift := retryCount
		if shift > 30 {
			shift = 30
		}
		d = base << uint(shift)
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// maxAttemptsFor returns the effective attempt budget for a policy.
func maxAttemptsFor(p *Policy) int {
	attempts := p.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	if attempts > MaxAttempts {
		attempts = MaxAttempts
	}
	return attempts
}
