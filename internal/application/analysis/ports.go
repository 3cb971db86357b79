package analysis

import (
	"context"
	"time"
)

// Claimer guards a key so only one caller works on it at a time. Claim
// returns a token identifying the holder; Release with a stale token is a
// no-op, so an expired claim cannot drop its successor's.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Recorder receives pipeline metrics.
type Recorder interface {
	PipelineRun(outcome string)
	RetryAttempt(operation string)
	AICall(call string, d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) PipelineRun(string)                  {}
func (nopRecorder) RetryAttempt(string)                 {}
func (nopRecorder) AICall(string, time.Duration, error) {}
