package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retry calls fn until it succeeds or attempts are exhausted, sleeping delay
// between failures. It blocks the caller; startup must not proceed without the
// dependency. The last failure is wrapped in the returned error.
func Retry(ctx context.Context, logger *slog.Logger, name string, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				logger.Info("connected after retry", "target", name, "attempt", attempt)
			}
			return nil
		}

		if attempt == attempts {
			break
		}

		logger.Warn("connection attempt failed, retrying",
			"target", name,
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("connect %s: %w", name, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("connect %s after %d attempts: %w", name, attempts, err)
}
