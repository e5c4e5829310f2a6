// Package retry is the bounded retry combinator shared by every call to the
// generation service.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/tatianab/casefile/internal/models"
)

const (
	DefaultAttempts  = 5
	DefaultBaseDelay = 2 * time.Second
	DefaultMaxDelay  = 10 * time.Second
)

// Policy bounds a retried call.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Retryable decides whether an error is worth another attempt.
	// models.Retryable is used when nil.
	Retryable func(error) bool
	// NewBackOff overrides the delay schedule.
	NewBackOff func() backoff.BackOff
}

// Default is five attempts, doubling from two seconds up to ten.
func Default() Policy {
	return Policy{
		Attempts:  DefaultAttempts,
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
		Retryable: models.Retryable,
	}
}

func (p Policy) schedule() backoff.BackOff {
	if p.NewBackOff != nil {
		return p.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Do calls op until it succeeds, fails with a non-retryable error, runs out
// of attempts or ctx is done. attempt starts at 1. The last error is returned
// unwrapped.
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = models.Retryable
	}
	attempts := max(p.Attempts, 1)

	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := op(ctx, attempt)
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.schedule(), uint64(attempts-1)), ctx)
	v, err := backoff.RetryNotifyWithData(operation, b, notify)
	if err != nil {
		logger.Error("Giving up", zap.Int("attempts", attempt), zap.Error(err))
	}
	return v, err
}
