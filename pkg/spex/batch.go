package spex

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/spex/pkg/promise"
)

// Origin is the outcome an item had before it was replaced, either by a
// failing callback or by the first failure of a nested batch.
type Origin struct {
	Success bool
	Result  any
}

// Outcome is the settled state of one batch item.
type Outcome struct {
	// Success reports whether the item resolved.
	Success bool

	// Result is the resolved value, or the error when Success is false.
	Result any

	// Origin is set when the outcome was derived from another one.
	Origin *Origin
}

// Err returns Result as an error for failed outcomes.
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	if err, ok := o.Result.(error); ok {
		return err
	}
	return promise.ErrRejected
}

// BatchResult is the value a successful Batch run resolves with.
type BatchResult struct {
	// Outcomes holds one entry per input item, in input order.
	Outcomes []Outcome

	// Duration is the total run time.
	Duration time.Duration
}

// Values returns the resolved value of every item, in input order.
func (r *BatchResult) Values() []any {
	values := make([]any, len(r.Outcomes))
	for i, o := range r.Outcomes {
		values[i] = o.Result
	}
	return values
}

// Batch settles every element of values concurrently and waits for all of
// them, successful or not.
//
// values must be a slice or an array. Elements are resolved as follows:
//   - a promise.Future settles the item when it settles
//   - a func(context.Context) (any, error) or func() (any, error) is called
//     and its result resolved in turn; an error or a panic fails the item
//   - anything else succeeds immediately with itself as the result
//
// The returned future resolves with *BatchResult when every item succeeded
// and rejects with *BatchError otherwise. Invalid values reject with
// *ParamError.
func (e *Engine) Batch(ctx context.Context, values any, opts ...BatchOption) promise.Future {
	items, ok := toItems(values)
	if !ok {
		return e.adapter.Reject(newParamError("values", "must be a slice"))
	}

	var o batchOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return spawn(e, func() (*BatchResult, error) {
		return e.runBatch(ctx, items, o)
	})
}

func (e *Engine) runBatch(ctx context.Context, items []any, o batchOptions) (*BatchResult, error) {
	r := e.startRun(KindBatch)

	outcomes := make([]Outcome, len(items))
	var (
		wg   sync.WaitGroup
		cbMu sync.Mutex
	)

	for i, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = e.settleItem(ctx, r, i, item, o.cb, &cbMu)
		}()
	}
	wg.Wait()

	stat := Stat{Total: len(items)}
	for _, out := range outcomes {
		if out.Success {
			stat.Succeeded++
		} else {
			stat.Failed++
		}
	}

	if stat.Failed > 0 {
		stat.Duration = r.elapsed()
		// Item failures are counted as they settle.
		return nil, r.fail(newBatchError(outcomes, stat), "")
	}

	return &BatchResult{
		Outcomes: outcomes,
		Duration: r.succeed(stat.Total),
	}, nil
}

func (e *Engine) settleItem(ctx context.Context, r *run, index int, item any, cb BatchCallback, cbMu *sync.Mutex) Outcome {
	value, err := e.resolveItem(ctx, item)
	r.step()

	out := Outcome{Success: err == nil, Result: value}
	if err != nil {
		out.Result = err
		if nested, ok := err.(*BatchError); ok {
			out.Origin = &Origin{Success: false, Result: nested.First()}
		}
		spexFailuresTotal.WithLabelValues(KindBatch.engine(), stageItem).Inc()
	}

	if cb == nil {
		return out
	}

	cbMu.Lock()
	ret, cbErr := invoke(func() (any, error) {
		return cb(ctx, index, out.Success, out.Result, r.elapsed())
	})
	cbMu.Unlock()

	if cbErr == nil {
		if f, ok := ret.(promise.Future); ok {
			_, cbErr = promise.Await(context.Background(), f)
		}
	}
	if cbErr != nil {
		spexFailuresTotal.WithLabelValues(KindBatch.engine(), stageCallback).Inc()
		r.logger.Debug().
			Err(cbErr).
			Int("index", index).
			Msg("Batch callback failed")
		return Outcome{
			Success: false,
			Result:  cbErr,
			Origin:  &Origin{Success: out.Success, Result: out.Result},
		}
	}
	return out
}

// resolveItem follows functions and futures until a plain value or an error
// is reached.
func (e *Engine) resolveItem(ctx context.Context, item any) (any, error) {
	for {
		switch v := item.(type) {
		case func(context.Context) (any, error):
			next, err := invoke(func() (any, error) { return v(ctx) })
			if err != nil {
				return nil, err
			}
			item = next
		case func() (any, error):
			next, err := invoke(v)
			if err != nil {
				return nil, err
			}
			item = next
		case promise.Future:
			return promise.Await(context.Background(), v)
		default:
			return e.settle(item)
		}
	}
}
