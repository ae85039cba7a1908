package ai

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/valee-art/ALXIE/pkg/logger"
)

// RetryConfig configures the bounded backoff applied to provider calls.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultRetryConfig keeps the user journey snappy: one retry after a
// short backoff, then the caller falls back to pre-authored text.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 1,
		BaseDelay:  2 * time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// retryWithBackoff executes op, retrying on retryable failures up to
// cfg.MaxRetries times. It returns the last error when all attempts fail.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, op func() error) error {
	var last error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		last = op()
		if last == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries || !isRetryable(last) {
			return last
		}
		delay := backoffDelay(cfg, attempt)
		logger.Warn("ai_call_retrying", "attempt", attempt+1, "delay", delay, "error", last)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return last
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}
	return time.Duration(delay)
}

// isRetryable classifies rate-limit and transient network failures.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"rate limit",
		"too many requests",
		"429",
		"502",
		"503",
		"504",
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"service unavailable",
		"context deadline exceeded",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
