package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the per-operation circuit breakers.
type BreakerConfig struct {
	Enabled         bool
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxCall uint32
}

func (c BreakerConfig) normalize() BreakerConfig {
	out := c
	if out.MinRequests == 0 {
		out.MinRequests = 10
	}
	if out.FailureRatio <= 0 || out.FailureRatio > 1 {
		out.FailureRatio = 0.5
	}
	if out.OpenTimeout <= 0 {
		out.OpenTimeout = 30 * time.Second
	}
	if out.HalfOpenMaxCall == 0 {
		out.HalfOpenMaxCall = 2
	}
	return out
}

// Breakers keeps one circuit breaker per operation name. A nil or disabled
// Breakers runs operations directly.
type Breakers struct {
	cfg BreakerConfig
	log logrus.FieldLogger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewBreakers(cfg BreakerConfig, log logrus.FieldLogger) *Breakers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Breakers{cfg: cfg.normalize(), log: log, breakers: map[string]*gobreaker.CircuitBreaker[any]{}}
}

// Run executes fn through the breaker named op. The breaker sees the final
// outcome of a whole retried operation, not the individual attempts.
func (b *Breakers) Run(ctx context.Context, op string, fn func(context.Context) error) error {
	if b == nil || !b.cfg.Enabled {
		return fn(ctx)
	}
	_, err := b.get(op).Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (b *Breakers) get(op string) *gobreaker.CircuitBreaker[any] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[op]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        op,
		MaxRequests: b.cfg.HalfOpenMaxCall,
		Timeout:     b.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < b.cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= b.cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about the remote side
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.WithFields(logrus.Fields{"operation": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state change")
		},
	})
	b.breakers[op] = cb
	return cb
}

// IsOpen reports whether err came from a tripped breaker.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
