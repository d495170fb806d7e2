package spex

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/spex/pkg/promise"
)

// run holds the bookkeeping shared by every step of one engine invocation.
type run struct {
	id     string
	kind   Kind
	start  time.Time
	logger zerolog.Logger
}

func (e *Engine) startRun(kind Kind) *run {
	r := &run{
		id:    uuid.NewString(),
		kind:  kind,
		start: time.Now(),
	}
	r.logger = e.logger.With().
		Str("run_id", r.id).
		Str("engine", kind.engine()).
		Logger()
	r.logger.Debug().Msg("Run started")
	return r
}

// elapsed is the time since the run started. It never decreases because
// time.Since uses the monotonic clock.
func (r *run) elapsed() time.Duration {
	return time.Since(r.start)
}

func (r *run) step() {
	spexStepsTotal.WithLabelValues(r.kind.engine()).Inc()
}

func (r *run) succeed(steps int) time.Duration {
	d := r.elapsed()
	spexRunsTotal.WithLabelValues(r.kind.engine(), "success").Inc()
	spexRunDuration.WithLabelValues(r.kind.engine()).Observe(d.Seconds())
	r.logger.Debug().
		Int("steps", steps).
		Dur("duration", d).
		Msg("Run complete")
	return d
}

func (r *run) fail(f Failure, stage string) error {
	spexRunsTotal.WithLabelValues(r.kind.engine(), "failure").Inc()
	spexRunDuration.WithLabelValues(r.kind.engine()).Observe(f.Duration().Seconds())
	if stage != "" {
		spexFailuresTotal.WithLabelValues(r.kind.engine(), stage).Inc()
	}
	r.logger.Warn().
		Err(f.Cause()).
		Int("index", f.Index()).
		Str("reason", f.Reason()).
		Dur("duration", f.Duration()).
		Msg("Run failed")
	return f
}

// stepResult is the settled outcome of one producer or consumer call.
type stepResult struct {
	value any
	// rejected distinguishes a future that settled into a failure from a
	// function that returned an error or panicked.
	rejected bool
	err      error
}

// invoke calls fn, converting a panic into an error.
func invoke(fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, promise.Recovered(r)
		}
	}()
	return fn()
}

// call runs one stage and waits for its value to settle through the adapter.
func (e *Engine) call(fn func() (any, error)) stepResult {
	v, err := invoke(fn)
	if err != nil {
		return stepResult{err: err}
	}
	v, err = e.settle(v)
	if err != nil {
		return stepResult{rejected: true, err: err}
	}
	return stepResult{value: v}
}

// settle normalizes v into a future with the adapter and blocks until it
// settles. Plain values go through Resolve, futures are awaited as they are.
// The engine never cancels a step, so the wait is not bound to a context.
func (e *Engine) settle(v any) (any, error) {
	f, ok := v.(promise.Future)
	if !ok {
		f = e.adapter.Resolve(v)
	}
	return promise.Await(context.Background(), f)
}
