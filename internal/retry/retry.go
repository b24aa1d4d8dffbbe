package retry

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"signal-trader/pkg/exchanges/common"
)

// Options configures one guarded call. Call sites pick their own attempt
// ceiling: reads tolerate more attempts than order submission.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	// Retryable classifies errors; defaults to common.Retryable.
	Retryable func(error) bool
}

// Reads returns the default options for balance/ticker/market-info reads.
func Reads(maxAttempts int, base time.Duration) Options {
	return Options{MaxAttempts: maxAttempts, BaseDelay: base, Jitter: true}
}

// Submits returns the conservative options for order submission.
func Submits(maxAttempts int, base time.Duration) Options {
	return Options{MaxAttempts: maxAttempts, BaseDelay: base, Jitter: true}
}

// Backoff returns the exponential delay for a given zero-based attempt:
// base * 2^attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = time.Minute
	}
	if attempt < 0 {
		return base
	}
	// 2^30 already exceeds any sane cap.
	if attempt > 30 {
		return max
	}
	d := base * time.Duration(1<<attempt)
	if d > max {
		return max
	}
	return d
}

// Do runs fn under the retry policy. Retryable failures are retried with
// exponential backoff until the attempt budget is spent; fatal failures and
// context cancellation propagate immediately. The last error is returned
// with the attempt count attached.
func Do(ctx context.Context, name string, opts Options, fn func(context.Context) error) error {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	classify := opts.Retryable
	if classify == nil {
		classify = common.Retryable
	}

	var lastErr error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := Backoff(opts.BaseDelay, opts.MaxDelay, attempt-1)
			if opts.Jitter {
				delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
			}
			log.Printf("%s: attempt %d/%d failed (%v), retrying in %v", name, attempt, opts.MaxAttempts, lastErr, delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !classify(err) {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return fmt.Errorf("%s: %d attempts exhausted: %w", name, opts.MaxAttempts, lastErr)
}
