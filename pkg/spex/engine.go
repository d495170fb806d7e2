package spex

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/spex/pkg/promise"
)

// Source produces the next page or item of a Page or Sequence run.
//
// index starts at 0. data is the value produced by the previous step (nil on
// the first step) and delay is the time elapsed since the run started. The
// returned value may be a plain value or a promise.Future. A returned error
// or a panic counts as the source having thrown.
type Source func(ctx context.Context, index int, data any, delay time.Duration) (any, error)

// Dest receives every page or item produced by a Source. Its return value is
// only inspected for failure; a returned promise.Future is awaited before the
// run advances.
type Dest func(ctx context.Context, index int, data any, delay time.Duration) (any, error)

type doneMarker struct{}

func (doneMarker) String() string { return "spex.Done" }

// Done is returned by a Source to signal that the run is exhausted.
// For Sequence it is the only end marker, so nil is a valid item. For Page an
// untyped nil is accepted as well.
var Done = doneMarker{}

func isDone(v any) bool {
	_, ok := v.(doneMarker)
	return ok
}

// Config holds the engine configuration.
type Config struct {
	// Adapter creates and settles every future the engine hands out.
	// Nil selects promise.Native().
	Adapter promise.Adapter

	// Logger receives run level events. The zero value disables logging.
	Logger zerolog.Logger
}

// DefaultConfig returns a configuration using the native promise adapter and
// a component logger derived from the global zerolog logger.
func DefaultConfig() Config {
	return Config{
		Adapter: promise.Native(),
		Logger:  log.With().Str("component", "spex").Logger(),
	}
}

// Engine runs Batch, Page and Sequence operations on top of one adapter.
// An Engine is safe for concurrent use; runs share nothing but the adapter.
type Engine struct {
	adapter promise.Adapter
	logger  zerolog.Logger
}

// New creates an engine. The error return is reserved for configuration
// that cannot be repaired; a missing adapter falls back to promise.Native().
func New(cfg Config) (*Engine, error) {
	if cfg.Adapter == nil {
		cfg.Adapter = promise.Native()
	}

	return &Engine{
		adapter: cfg.Adapter,
		logger:  cfg.Logger,
	}, nil
}

// Adapter returns the adapter the engine was built with.
func (e *Engine) Adapter() promise.Adapter {
	return e.adapter
}

// spawn returns a future created through the adapter whose settlement is
// produced by fn on its own goroutine.
func spawn[T any](e *Engine, fn func() (T, error)) promise.Future {
	return e.adapter.Create(func(resolve func(any), reject func(error)) {
		go func() {
			res, err := fn()
			if err != nil {
				reject(err)
				return
			}
			resolve(res)
		}()
	})
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the engine used by the package level functions.
// It does not log; build an engine with New to get run logs.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine, _ = New(Config{Adapter: promise.Native(), Logger: zerolog.Nop()})
	})
	return defaultEngine
}

// Batch runs Default().Batch.
func Batch(ctx context.Context, values any, opts ...BatchOption) promise.Future {
	return Default().Batch(ctx, values, opts...)
}

// Page runs Default().Page.
func Page(ctx context.Context, source Source, opts ...Option) promise.Future {
	return Default().Page(ctx, source, opts...)
}

// Sequence runs Default().Sequence.
func Sequence(ctx context.Context, source Source, opts ...Option) promise.Future {
	return Default().Sequence(ctx, source, opts...)
}

// sliceLen reports the length of v if it is a slice or an array.
func sliceLen(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len(), true
	default:
		return 0, false
	}
}

// toItems copies a slice or array into []any.
func toItems(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	n, ok := sliceLen(v)
	if !ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	items := make([]any, n)
	for i := 0; i < n; i++ {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
