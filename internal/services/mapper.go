package services

import (
	"context"
	"sync"
)

// mapWithLimit runs fn for every item with at most limit invocations in
// flight, writing each result into the slot matching its input index. Output
// order therefore matches input order regardless of completion order. fn must
// handle its own failures: one slow or failed item never aborts or stalls the
// others.
func mapWithLimit[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, index int, item T) R) []R {
	if limit <= 0 {
		limit = 1
	}
	if limit > len(items) {
		limit = len(items)
	}

	results := make([]R, len(items))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, limit)

	for i, item := range items {
		wg.Add(1)
		go func(idx int, it T) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[idx] = fn(ctx, idx, it)
		}(i, item)
	}

	wg.Wait()
	return results
}
