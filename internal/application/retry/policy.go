package retry

import "time"

// Backoff selects how the wait between attempts grows.
type Backoff string

const (
	// Linear waits BaseDelay * attempt.
	Linear Backoff = "linear"
	// Fixed always waits BaseDelay.
	Fixed Backoff = "fixed"
)

// Policy is the attempt budget for one kind of remote operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     Backoff
	// Retryable reports whether err is worth another attempt. Nil retries
	// every error.
	Retryable func(err error) bool
}

// DefaultPolicy is three attempts with a one second linear backoff.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, Backoff: Linear}
}

func (p Policy) normalize() Policy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.BaseDelay < 0 {
		out.BaseDelay = 0
	}
	if out.Backoff == "" {
		out.Backoff = Linear
	}
	return out
}

// Delay is the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Backoff == Fixed {
		return p.BaseDelay
	}
	return p.BaseDelay * time.Duration(attempt)
}

// Budget is the longest Do can take when every attempt runs for perAttempt:
// all attempts plus the waits between them.
func (p Policy) Budget(perAttempt time.Duration) time.Duration {
	n := p.normalize()
	total := perAttempt * time.Duration(n.MaxAttempts)
	for i := 1; i < n.MaxAttempts; i++ {
		total += n.Delay(i)
	}
	return total
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}
