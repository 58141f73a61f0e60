// Package fanout runs one call per target in parallel and reports how each
// call went. A failing call never stops the others.
package fanout

import (
	"context"
	"sync"
)

// Result is the outcome of the call made for Target.
type Result[T any] struct {
	Target T
	Err    error
}

// Run calls fn once per target concurrently and waits for all of them.
// Results are returned in target order.
func Run[T any](ctx context.Context, targets []T, fn func(ctx context.Context, target T) error) []Result[T] {
	results := make([]Result[T], len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		results[i].Target = target
		wg.Add(1)
		go func(i int, target T) {
			defer wg.Done()
			results[i].Err = fn(ctx, target)
		}(i, target)
	}
	wg.Wait()

	return results
}

// Failed returns the results that carry an error.
func Failed[T any](results []Result[T]) []Result[T] {
	var failed []Result[T]
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
