package tasks

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/desertthunder/yt2pt/internal/shared"
)

// RetryPolicy bounds how often a transient remote failure is retried for one item step.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy returns three attempts with exponential backoff from one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
	}
}

// RetryPolicyFromConfig builds a policy from transfer settings, filling unset values from the default.
func RetryPolicyFromConfig(cfg shared.TransferConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff.Duration > 0 {
		p.InitialInterval = cfg.InitialBackoff.Duration
	}
	if cfg.MaxBackoff.Duration > 0 {
		p.MaxInterval = cfg.MaxBackoff.Duration
	}
	return p
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	if p.Multiplier > 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = 0.2
	return b
}

// retry runs op until it succeeds, fails permanently, or the policy is exhausted.
//
// Only errors classified by [shared.IsTransient] are retried. onRetry, if set, runs before each wait.
func retry[T any](ctx context.Context, p RetryPolicy, op func(attempt int) (T, error), onRetry func(err error, wait time.Duration)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	n := 0
	operation := func() (T, error) {
		n++
		v, err := op(n)
		if err != nil && !shared.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if onRetry != nil {
		opts = append(opts, backoff.WithNotify(onRetry))
	}

	return backoff.Retry(ctx, operation, opts...)
}
