package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrRetriesExhausted flags a task failure that already consumed its full
// retry budget, so callers can escalate to alerting instead of treating it
// like a plain single-attempt failure.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy is a bounded retry policy with exponential backoff. Every task
// error is retried the same way; the system does not distinguish transient
// from structural failures.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Run invokes fn up to MaxAttempts times. When the budget is exhausted the
// last error is wrapped in ErrRetriesExhausted.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(delay))

	var last error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			last = err
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if last == nil {
			last = err
		}
		return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, last)
	}
	return nil
}
