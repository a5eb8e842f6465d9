// Package workpool runs a worker over a batch with a fixed cap on the number
// of workers in flight.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map applies worker to every item with at most limit workers active and
// returns the results aligned to the input order.
//
// The first worker error is returned as soon as it happens. Workers already
// running are left to finish and their results are dropped; pending items are
// never started. A cancelled ctx stops new launches and returns ctx's error.
func Map[T any, R any](ctx context.Context, items []T, limit int, worker func(ctx context.Context, item T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if limit < 1 {
		limit = 1
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	results := make([]R, len(items))
	failed := make(chan error, 1)
	done := make(chan struct{})
	var stopped error

	go func() {
		defer close(done)
		for index, item := range items {
			if err := groupCtx.Err(); err != nil {
				stopped = err
				break
			}
			group.Go(func() error {
				// a slot freed by a failing worker must not start new work
				if err := groupCtx.Err(); err != nil {
					return err
				}
				result, err := worker(groupCtx, item)
				if err != nil {
					select {
					case failed <- err:
					default:
					}
					return err
				}
				results[index] = result
				return nil
			})
		}
		if err := group.Wait(); err != nil && stopped == nil {
			stopped = err
		}
	}()

	select {
	case err := <-failed:
		return nil, err
	case <-done:
	}

	select {
	case err := <-failed:
		return nil, err
	default:
	}
	if stopped != nil {
		return nil, stopped
	}
	return results, nil
}
