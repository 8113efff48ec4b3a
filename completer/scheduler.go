package completer

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// batchScheduler fans prompt rows out to the completion client while keeping
// the number of in-flight calls at or below the configured cap.
type batchScheduler struct {
	client        *completionClient
	maxConcurrent int
	limiter       *rate.Limiter
	metrics       *MetricsRecorder
}

func newBatchScheduler(client *completionClient, maxConcurrent int, limiter *rate.Limiter, metrics *MetricsRecorder) *batchScheduler {
	return &batchScheduler{
		client:        client,
		maxConcurrent: maxConcurrent,
		limiter:       limiter,
		metrics:       metrics,
	}
}

// Run completes every row concurrently and returns one outcome per row,
// positionally aligned with the input. Row failures land in their outcome
// slot; the only error Run itself returns is cancellation of the batch
// context, in which case no outcomes are returned at all.
func (s *batchScheduler) Run(ctx context.Context, rows []PromptRow, opts *batchOptions) ([]CompletionOutcome, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	limit := s.maxConcurrent
	if limit <= 0 {
		limit = 1
	}

	slog.Info("Starting batch completion",
		"rows", len(rows),
		"max_concurrent", limit)

	s.metrics.RecordBatchSize(len(rows))
	s.metrics.RecordQueuedRequests(float64(len(rows)))

	outcomes := make([]CompletionOutcome, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	admitted := 0
	for i, row := range rows {
		// Per-iteration copies: required while building with a pre-1.22
		// language version, where range variables are shared across iterations
		i, row := i, row

		// Stop admitting new work once the batch is cancelled
		if gctx.Err() != nil {
			break
		}

		admitted++
		g.Go(func() error {
			s.metrics.RecordQueuedRequests(-1)
			s.metrics.RecordConcurrentRequests(1)
			defer s.metrics.RecordConcurrentRequests(-1)

			if s.limiter != nil {
				if err := s.limiter.Wait(gctx); err != nil {
					outcomes[i] = CompletionOutcome{
						Kind:   ErrorKindUnknown,
						Detail: err.Error(),
					}
					return nil
				}
			}

			// Each slot is written exactly once, by its own goroutine
			outcomes[i] = s.client.Complete(gctx, row, opts)
			return nil
		})
	}

	_ = g.Wait()

	// Rows never admitted still hold a place in the queue gauge
	if admitted < len(rows) {
		s.metrics.RecordQueuedRequests(float64(admitted - len(rows)))
	}

	if err := ctx.Err(); err != nil {
		slog.Warn("Batch completion cancelled",
			"rows", len(rows),
			"admitted", admitted,
			"error", err)
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}

	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}

	s.metrics.RecordRowsProcessed(len(rows))

	slog.Info("Batch completion finished",
		"rows", len(rows),
		"failed", failed)

	return outcomes, nil
}
