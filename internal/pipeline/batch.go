package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// each runs fn for every item with at most workers in flight. Per-item
// errors are classified and counted; only a stage-class error, or the
// context ending, stops the batch and is returned.
func each[T any](
	ctx context.Context,
	logger *slog.Logger,
	workers int,
	items []T,
	key func(T) string,
	fn func(context.Context, T) error,
) (Tally, error) {
	var (
		mu    sync.Mutex
		tally Tally
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(workers, len(items)))

	for _, item := range items {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			err := fn(gctx, item)
			class := Classify(err)

			mu.Lock()
			defer mu.Unlock()

			switch class {
			case FailureNone:
				tally.Processed++
			case FailurePolicy:
				tally.Skipped++
				logger.Warn("document skipped", "document_id", key(item), "error", err)
			case FailureStage:
				return fmt.Errorf("document %s: %w", key(item), err)
			default:
				tally.Failed++
				logger.Error("document failed",
					"document_id", key(item),
					"failure", class.String(),
					"error", err,
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return tally, err
	}
	if err := ctx.Err(); err != nil {
		return tally, err
	}
	return tally, nil
}

func workerCount(workers, items int) int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return max(min(workers, items), 1)
}
