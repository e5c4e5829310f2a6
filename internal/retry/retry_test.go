package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/casefile/internal/models"
)

func instant() Policy {
	p := Default()
	p.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return p
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), instant(), nil, func(_ context.Context, attempt int) (string, error) {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return "", fmt.Errorf("dial: %w", models.ErrNetwork)
		}
		return "scene", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "scene", got)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAfterAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), instant(), nil, func(context.Context, int) (int, error) {
		calls++
		return 0, models.ErrMalformedResponse
	})
	assert.ErrorIs(t, err, models.ErrMalformedResponse)
	assert.Equal(t, DefaultAttempts, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	for _, target := range []error{models.ErrAuthentication, models.ErrQuotaExceeded} {
		t.Run(target.Error(), func(t *testing.T) {
			calls := 0
			_, err := Do(context.Background(), instant(), nil, func(context.Context, int) (int, error) {
				calls++
				return 0, fmt.Errorf("openai: %w", target)
			})
			assert.ErrorIs(t, err, target)
			assert.Equal(t, 1, calls)

			var permanent *backoff.PermanentError
			assert.False(t, errors.As(err, &permanent), "permanent wrapper must not leak")
		})
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	_, err := Do(ctx, instant(), nil, func(context.Context, int) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, models.ErrNetwork
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestDoAtLeastOnce(t *testing.T) {
	p := instant()
	p.Attempts = 0
	calls := 0
	_, err := Do(context.Background(), p, nil, func(context.Context, int) (int, error) {
		calls++
		return 0, models.ErrNetwork
	})
	assert.ErrorIs(t, err, models.ErrNetwork)
	assert.Equal(t, 1, calls)
}

func TestDefaultSchedule(t *testing.T) {
	b, ok := Default().schedule().(*backoff.ExponentialBackOff)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, b.InitialInterval)
	assert.Equal(t, 10*time.Second, b.MaxInterval)
	assert.Equal(t, 2.0, b.Multiplier)
	assert.Equal(t, time.Duration(0), b.MaxElapsedTime)

	b.RandomizationFactor = 0
	b.Reset()
	var waits []time.Duration
	for range 4 {
		waits = append(waits, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}, waits)
}
