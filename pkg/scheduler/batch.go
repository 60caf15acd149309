package scheduler

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultBatchSize is how many operations are submitted together when
	// BatchOptions.BatchSize is zero
	DefaultBatchSize = 10
	// DefaultBatchDelay is the pacing delay between successive batches when
	// BatchOptions.BatchDelay is zero
	DefaultBatchDelay = 100 * time.Millisecond
)

// BatchOptions controls ExecuteBatch pacing and per-operation tagging
type BatchOptions struct {
	BatchSize  int
	BatchDelay time.Duration
	// Timeout applies to each operation individually while it is pending
	Timeout  time.Duration
	UserID   string
	Model    string
	Priority Priority
}

// BatchResult is the outcome of one operation within a batch. Results are
// returned in submission order regardless of completion order.
type BatchResult struct {
	Index int
	Value interface{}
	Err   error
}

// Succeeded reports whether the operation produced a result
func (r BatchResult) Succeeded() bool {
	return r.Err == nil
}

// ExecuteBatch drives a list of operations through the scheduler in groups
// of BatchSize with a fixed delay between groups to smooth load on the
// downstream provider. Every operation's outcome is captured individually; a
// failing operation never aborts the batch.
func (s *Scheduler) ExecuteBatch(ctx context.Context, ops []Operation, opts BatchOptions) []BatchResult {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	delay := opts.BatchDelay
	if delay <= 0 {
		delay = DefaultBatchDelay
	}

	results := make([]BatchResult, len(ops))

	for start := 0; start < len(ops); start += batchSize {
		end := start + batchSize
		if end > len(ops) {
			end = len(ops)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int, op Operation) {
				defer wg.Done()
				value, err := s.Submit(ctx, op, SubmitOptions{
					UserID:   opts.UserID,
					Model:    opts.Model,
					Priority: opts.Priority,
					Timeout:  opts.Timeout,
				})
				results[idx] = BatchResult{Index: idx, Value: value, Err: err}
			}(i, ops[i])
		}
		wg.Wait()

		if end < len(ops) {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				// Remaining operations are reported as cancelled rather
				// than silently dropped.
				for i := end; i < len(ops); i++ {
					results[i] = BatchResult{Index: i, Err: ctx.Err()}
				}
				return results
			}
		}
	}

	return results
}
