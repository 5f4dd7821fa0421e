package retrycore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	c := New()
	calls := 0
	err := c.Do(context.Background(), "default", "svc", "default", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRetryableErrorUpToMaxAttempts(t *testing.T) {
	c := New()
	calls := 0
	err := c.Do(context.Background(), "default", "svc-retry", "", func(ctx context.Context) error {
		calls++
		return apierr.TransientModel("x", errors.New("unavailable"))
	})
	require.Error(t, err)
	assert.Equal(t, Profiles["default"].MaxAttempts, calls)
}

func TestDoDoesNotRetryFatalKind(t *testing.T) {
	c := New()
	calls := 0
	err := c.Do(context.Background(), "default", "svc-fatal", "", func(ctx context.Context) error {
		calls++
		return apierr.Validation("x", errors.New("bad"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoReturnsCircuitOpenWithoutCallingFn(t *testing.T) {
	c := New()
	key := "svc-breaker"
	for i := 0; i < defaultFailureThreshold; i++ {
		c.breakers.RecordFailure(key)
	}
	calls := 0
	err := c.Do(context.Background(), "default", key, "", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindCircuitOpen))
	assert.Equal(t, 0, calls)
}

func TestDoRecordsSuccessAfterFailure(t *testing.T) {
	c := New()
	key := "svc-recovers"
	first := true
	err := c.Do(context.Background(), "default", key, "", func(ctx context.Context) error {
		if first {
			first = false
			return apierr.TransientModel("x", errors.New("unavailable"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, BreakerClosed, c.BreakerState(key))
}
