package ai

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/valee-art/ALXIE/pkg/logger"
)

// AffirmationCache serves the daily affirmation without a provider call on
// every page view. The cached text is refreshed whenever the configured
// cron expression comes due.
type AffirmationCache struct {
	responder Responder
	expr      string
	gron      *gronx.Gronx

	mu   sync.RWMutex
	text string
}

// NewAffirmationCache builds a cache refreshed per the cron expression,
// e.g. "0 6 * * *" for every morning. The cache starts with the safe
// default text until the first refresh succeeds.
func NewAffirmationCache(responder Responder, cronExpr string) *AffirmationCache {
	return &AffirmationCache{
		responder: responder,
		expr:      cronExpr,
		gron:      gronx.New(),
		text:      DefaultAffirmationText,
	}
}

// Get returns the current affirmation text. Never empty.
func (c *AffirmationCache) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text
}

// Refresh fetches a new affirmation now.
func (c *AffirmationCache) Refresh(ctx context.Context) {
	text := c.responder.DailyAffirmation(ctx)
	if text == "" {
		text = FallbackAffirmationText
	}
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

// Start refreshes once immediately, then checks the cron expression every
// minute until ctx is done.
func (c *AffirmationCache) Start(ctx context.Context) {
	if !c.gron.IsValid(c.expr) {
		logger.Warn("affirmation_cron_invalid", "expr", c.expr)
		c.Refresh(ctx)
		return
	}
	c.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				due, err := c.gron.IsDue(c.expr, time.Now())
				if err != nil {
					logger.Warn("affirmation_cron_check_failed", "expr", c.expr, "error", err)
					continue
				}
				if due {
					c.Refresh(ctx)
				}
			}
		}
	}()
}
