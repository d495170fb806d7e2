package spex

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/spex/pkg/promise"
)

// PageResult is the value a successful Page run resolves with.
type PageResult struct {
	// Pages is the number of pages produced.
	Pages int

	// Total is the sum of the lengths of all pages.
	Total int

	// Duration is the total run time.
	Duration time.Duration
}

// Page repeatedly calls source for a page of items (any slice or array) and
// hands each page to the destination, if any, until source returns nil or
// Done, or the limit is reached. Steps never overlap.
//
// ctx is passed unchanged to every source and destination call. The engine
// itself never cancels a run.
//
// The returned future resolves with *PageResult or rejects with *PageError.
// A nil source rejects with *ParamError.
func (e *Engine) Page(ctx context.Context, source Source, opts ...Option) promise.Future {
	if source == nil {
		return e.adapter.Reject(newParamError("source", "must be a function"))
	}
	o := buildOptions(opts)

	return spawn(e, func() (*PageResult, error) {
		return e.runPage(ctx, source, o)
	})
}

func (e *Engine) runPage(ctx context.Context, source Source, o options) (*PageResult, error) {
	r := e.startRun(KindPage)
	res := &PageResult{}

	var data any
	for index := 0; ; index++ {
		r.step()
		src := e.call(func() (any, error) {
			return source(ctx, index, data, r.elapsed())
		})
		if src.err != nil {
			code := PageSourceThrew
			if src.rejected {
				code = PageSourceRejected
			}
			f := newPageError(sourceFailure(index, src.err, data), code, o.sourceLabel, r.elapsed())
			return nil, r.fail(f, stageSource)
		}

		page := src.value
		if page == nil || isDone(page) {
			break
		}
		n, ok := sliceLen(page)
		if !ok {
			err := fmt.Errorf("%w: got %T", ErrNonSlicePage, page)
			f := newPageError(sourceFailure(index, err, data), PageSourceNonSliceData, o.sourceLabel, r.elapsed())
			return nil, r.fail(f, stageSource)
		}

		if o.dest != nil {
			dst := e.call(func() (any, error) {
				return o.dest(ctx, index, page, r.elapsed())
			})
			if dst.err != nil {
				code := PageDestThrew
				if dst.rejected {
					code = PageDestRejected
				}
				f := newPageError(destFailure(index, dst.err, page), code, o.destLabel, r.elapsed())
				return nil, r.fail(f, stageDest)
			}
		}

		data = page
		res.Pages = index + 1
		res.Total += n
		if o.limitReached(index) {
			break
		}
	}

	res.Duration = r.succeed(res.Pages)
	return res, nil
}
