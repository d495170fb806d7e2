// Package spex implements asynchronous iteration primitives on top of a
// pluggable promise adapter.
//
// Three engines are provided:
//
//   - Batch settles a fixed set of values concurrently and reports every
//     outcome, failing only after all items settled.
//   - Page pulls pages (slices) from a source and optionally pushes each page
//     to a destination, one step at a time.
//   - Sequence does the same with single items and can track every item it
//     produced.
//
// Every entry point returns a promise.Future created through the engine's
// adapter, so the engines run on any future implementation that satisfies
// promise.Adapter.
//
// # Basic Usage
//
//	engine, err := spex.New(spex.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	source := func(ctx context.Context, index int, data any, delay time.Duration) (any, error) {
//		if index < 3 {
//			return index, nil
//		}
//		return spex.Done, nil
//	}
//
//	v, err := promise.Await(ctx, engine.Sequence(ctx, source, spex.WithTrack(true)))
//	// v.(*spex.SequenceResult).Items == []any{0, 1, 2}
//
// # Failures
//
// Page and Sequence stop at the first failing step and reject with
// *PageError or *SequenceError. Batch waits for all items and rejects with
// *BatchError. All three implement Failure and carry a reason built from a
// fixed template per reason code, for example:
//
//	Source 'fetch' threw an error at index 3.
//
// Labels come from WithSourceLabel and WithDestLabel; unlabeled functions
// are reported as <anonymous>.
//
// Invalid arguments reject with *ParamError, which wraps ErrInvalidParameter
// and is never wrapped into an engine error.
//
// # Metrics
//
// The engines export Prometheus metrics:
//
//   - spex_runs_total{engine, outcome} - Completed runs
//   - spex_run_duration_seconds{engine} - Run duration
//   - spex_steps_total{engine} - Source calls or settled batch items
//   - spex_failures_total{engine, stage} - Failed stages
package spex
