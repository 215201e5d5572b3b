package invoker

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentrelay/core"
)

// Call names one agent invocation for the parallel helpers.
type Call struct {
	Agent  string
	Params map[string]any
}

// All invokes every call concurrently and returns the results in input
// order. The first error to occur is returned immediately; siblings are
// not cancelled and run to completion unobserved, so their audit events
// and memory writes still happen.
func (iv *Invoker) All(ctx context.Context, calls []Call) ([]map[string]any, error) {
	return iv.fanOut(ctx, calls, int64(len(calls)))
}

// Limited is All with at most limit calls in flight at once.
func (iv *Invoker) Limited(ctx context.Context, calls []Call, limit int64) ([]map[string]any, error) {
	if limit < 1 {
		return nil, &core.ValidationError{Field: "limit", Reason: "concurrency limit must be at least 1"}
	}
	return iv.fanOut(ctx, calls, limit)
}

type slotResult struct {
	idx    int
	output map[string]any
	err    error
}

func (iv *Invoker) fanOut(ctx context.Context, calls []Call, limit int64) ([]map[string]any, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	sem := semaphore.NewWeighted(limit)
	// Buffered so late finishers never block after an early return.
	done := make(chan slotResult, len(calls))

	for i, call := range calls {
		go func(i int, call Call) {
			if err := sem.Acquire(ctx, 1); err != nil {
				done <- slotResult{idx: i, err: err}
				return
			}
			defer sem.Release(1)
			out, err := iv.Invoke(ctx, call.Agent, call.Params)
			done <- slotResult{idx: i, output: out, err: err}
		}(i, call)
	}

	results := make([]map[string]any, len(calls))
	for range calls {
		r := <-done
		if r.err != nil {
			return nil, r.err
		}
		results[r.idx] = r.output
	}
	return results, nil
}
