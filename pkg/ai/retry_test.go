package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoffSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoffRetriesRetryable(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
	calls := 0
	err := retryWithBackoff(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("429 too many requests")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffStopsOnNonRetryable(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
	calls := 0
	fatal := errors.New("invalid api key")
	err := retryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoffHonorsContext(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2.0}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := retryWithBackoff(ctx, cfg, func() error {
		return errors.New("timeout")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelayCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10.0}
	d := backoffDelay(cfg, 5)
	assert.LessOrEqual(t, d, 3*time.Second)
}

func TestIsRetryableClassification(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{errors.New("rate limit exceeded"), true},
		{errors.New("HTTP 503 service unavailable"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("invalid request"), false},
		{nil, false},
	}
	for _, tc := range cases {
		msg := "nil"
		if tc.err != nil {
			msg = tc.err.Error()
		}
		assert.Equal(t, tc.retryable, isRetryable(tc.err), msg)
	}
}
