package spex

import (
	"context"
	"time"
)

// options configures Page and Sequence runs.
type options struct {
	dest        Dest
	limit       int
	track       bool
	sourceLabel string
	destLabel   string
}

// Option configures a Page or Sequence run.
type Option func(*options)

// WithDest sets the destination that receives every produced page or item.
func WithDest(dest Dest) Option {
	return func(o *options) {
		o.dest = dest
	}
}

// WithLimit caps the number of steps. Values <= 0 mean no limit, so
// WithLimit(0) does not produce an empty run; skip the call for that.
func WithLimit(limit int) Option {
	return func(o *options) {
		o.limit = limit
	}
}

// WithTrack makes Sequence collect every produced item into
// SequenceResult.Items. Page ignores it.
func WithTrack(track bool) Option {
	return func(o *options) {
		o.track = track
	}
}

// WithSourceLabel names the source in failure reasons.
func WithSourceLabel(label string) Option {
	return func(o *options) {
		o.sourceLabel = label
	}
}

// WithDestLabel names the destination in failure reasons.
func WithDestLabel(label string) Option {
	return func(o *options) {
		o.destLabel = label
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// limitReached reports whether the step at index was the last one allowed.
func (o options) limitReached(index int) bool {
	return o.limit > 0 && index+1 == o.limit
}

// BatchCallback is notified once per settled batch item, in settlement order.
// Calls never overlap. A returned error, a panic or a rejected future
// replaces the item's outcome.
type BatchCallback func(ctx context.Context, index int, success bool, result any, delay time.Duration) (any, error)

type batchOptions struct {
	cb BatchCallback
}

// BatchOption configures a Batch run.
type BatchOption func(*batchOptions)

// WithCallback sets the per-item callback.
func WithCallback(cb BatchCallback) BatchOption {
	return func(o *batchOptions) {
		o.cb = cb
	}
}
