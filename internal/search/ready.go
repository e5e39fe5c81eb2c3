package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/docpipeline/internal/lifecycle"
)

// EnsureReady creates the index, retrying while the backend comes up, and
// resolves ready with the final outcome.
func EnsureReady(ctx context.Context, idx Index, name string, attempts int, delay time.Duration, ready *lifecycle.Signal, logger *slog.Logger) error {
	err := lifecycle.Retry(ctx, logger, "search index", attempts, delay, func(ctx context.Context) error {
		return idx.EnsureIndexExists(ctx, name)
	})
	ready.Resolve(err)
	return err
}
