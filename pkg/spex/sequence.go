package spex

import (
	"context"
	"time"

	"github.com/Sternrassler/spex/pkg/promise"
)

// SequenceResult is the value a successful Sequence run resolves with.
type SequenceResult struct {
	// Total is the number of items produced.
	Total int

	// Duration is the total run time.
	Duration time.Duration

	// Items holds every produced item in order. It is only set in track mode.
	Items []any
}

// Sequence repeatedly calls source for one item at a time and hands each
// item to the destination, if any, until source returns Done or the limit is
// reached. Every step, including the destination call, completes before the
// next source call starts.
//
// ctx is passed unchanged to every source and destination call. The engine
// itself never cancels a run.
//
// The returned future resolves with *SequenceResult or rejects with
// *SequenceError. A nil source rejects with *ParamError.
func (e *Engine) Sequence(ctx context.Context, source Source, opts ...Option) promise.Future {
	if source == nil {
		return e.adapter.Reject(newParamError("source", "must be a function"))
	}
	o := buildOptions(opts)

	return spawn(e, func() (*SequenceResult, error) {
		return e.runSequence(ctx, source, o)
	})
}

func (e *Engine) runSequence(ctx context.Context, source Source, o options) (*SequenceResult, error) {
	r := e.startRun(KindSequence)

	res := &SequenceResult{}
	if o.track {
		res.Items = []any{}
	}

	var data any
	for index := 0; ; index++ {
		r.step()
		src := e.call(func() (any, error) {
			return source(ctx, index, data, r.elapsed())
		})
		if src.err != nil {
			code := SequenceSourceThrew
			if src.rejected {
				code = SequenceSourceRejected
			}
			f := newSequenceError(sourceFailure(index, src.err, data), code, o.sourceLabel, r.elapsed())
			return nil, r.fail(f, stageSource)
		}

		item := src.value
		if isDone(item) {
			break
		}
		if o.track {
			res.Items = append(res.Items, item)
		}

		if o.dest != nil {
			dst := e.call(func() (any, error) {
				return o.dest(ctx, index, item, r.elapsed())
			})
			if dst.err != nil {
				code := SequenceDestThrew
				if dst.rejected {
					code = SequenceDestRejected
				}
				f := newSequenceError(destFailure(index, dst.err, item), code, o.destLabel, r.elapsed())
				return nil, r.fail(f, stageDest)
			}
		}

		data = item
		res.Total = index + 1
		if o.limitReached(index) {
			break
		}
	}

	res.Duration = r.succeed(res.Total)
	return res, nil
}
