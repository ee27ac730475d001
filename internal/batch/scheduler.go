// Package batch fans a list of voiceover items out to per-item controllers
// under a bounded worker pool and collects exactly one result per item.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceover-service/internal/core"
)

// Batch validation errors.
var (
	ErrNoItems            = errors.New("batch contains no items")
	ErrEmptyOutputID      = errors.New("item output_id cannot be empty")
	ErrDuplicateOutputID  = errors.New("duplicate output_id in batch")
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
)

// ItemRunner runs one item start to finish. Implemented by controller.Controller.
type ItemRunner interface {
	Run(ctx context.Context, item core.VoiceoverItem) core.ItemResult
}

// Scheduler runs batches with a fixed worker-pool size. Items never affect
// each other; a panic or failure in one item is recorded in its own result.
type Scheduler struct {
	runner      ItemRunner
	concurrency int
	log         *logger.Logger
}

// New creates a Scheduler. Concurrency must be positive.
func New(runner ItemRunner, concurrency int, log *logger.Logger) (*Scheduler, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, concurrency)
	}

	return &Scheduler{
		runner:      runner,
		concurrency: concurrency,
		log:         log,
	}, nil
}

// Run processes every item and returns results in input order, one per item.
// Validation errors reject the whole batch before any provider call. A
// canceled context stops new items from starting; items already running finish
// and keep their real results.
func (s *Scheduler) Run(ctx context.Context, items []core.VoiceoverItem) ([]core.ItemResult, error) {
	err := validateBatch(items)
	if err != nil {
		return nil, err
	}

	s.log.Info("Starting batch of %d item(s) with %d worker(s)", len(items), s.concurrency)

	var waitGroup sync.WaitGroup

	results := make([]core.ItemResult, len(items))
	workerPool := make(chan struct{}, s.concurrency)

	for itemIndex := range items {
		waitGroup.Add(1)

		go func(index int) {
			defer waitGroup.Done()

			select {
			case workerPool <- struct{}{}:
			case <-ctx.Done():
				results[index] = canceledResult(items[index])

				return
			}

			defer func() { <-workerPool }()

			if ctx.Err() != nil {
				results[index] = canceledResult(items[index])

				return
			}

			defer func() {
				if r := recover(); r != nil {
					s.log.Error("Item %s panicked: %v", items[index].OutputID, r)

					results[index] = core.ItemResult{
						OutputID:       items[index].OutputID,
						Disposition:    core.DispositionFailed,
						TargetDuration: items[index].TargetDuration,
						Reason:         fmt.Sprintf("internal error: %v", r),
					}
				}
			}()

			results[index] = s.runner.Run(ctx, items[index])
		}(itemIndex)
	}

	waitGroup.Wait()
	close(workerPool)

	s.log.Info("Batch finished: %s", summarize(results))

	return results, nil
}

func validateBatch(items []core.VoiceoverItem) error {
	if len(items) == 0 {
		return ErrNoItems
	}

	seen := make(map[string]struct{}, len(items))

	for i := range items {
		id := items[i].OutputID
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: item %d", ErrEmptyOutputID, i)
		}

		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateOutputID, id)
		}

		seen[id] = struct{}{}
	}

	return nil
}

func canceledResult(item core.VoiceoverItem) core.ItemResult {
	return core.ItemResult{
		OutputID:       item.OutputID,
		Disposition:    core.DispositionFailed,
		TargetDuration: item.TargetDuration,
		Reason:         "batch canceled before item started",
	}
}

func summarize(results []core.ItemResult) string {
	counts := make(map[core.Disposition]int, 3)
	for i := range results {
		counts[results[i].Disposition]++
	}

	return fmt.Sprintf("%d completed, %d needs_review, %d failed",
		counts[core.DispositionCompleted],
		counts[core.DispositionNeedsReview],
		counts[core.DispositionFailed],
	)
}
