// Package promise provides the completion adapter used by the spex engines
// and a native promise implementation that satisfies it.
//
// The engines never reference *Promise directly. They only talk to an
// Adapter, so any future implementation that can be expressed as the
// Create/Resolve/Reject triad can drive them.
package promise

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

var (
	// ErrRejected is the reason used when a promise is rejected with a nil error.
	ErrRejected = errors.New("promise rejected")

	// ErrSelfResolution is returned when a promise is resolved with itself.
	ErrSelfResolution = errors.New("promise resolved with itself")

	// ErrPending is returned by Result while the promise has not settled.
	ErrPending = errors.New("promise pending")

	// ErrNilFuture is the rejection reason for a nil pointer posing as a Future.
	ErrNilFuture = errors.New("nil future")
)

// Future is an asynchronous result that settles exactly once.
//
// Then registers a pair of callbacks. Exactly one of them is invoked, exactly
// once, after the future settles. Registering after settlement invokes the
// matching callback immediately.
type Future interface {
	Then(onFulfilled func(value any), onRejected func(reason error))
}

// PanicError is the rejection reason produced when an executor panics.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recovered converts a recovered panic value into a *PanicError.
func Recovered(r any) *PanicError {
	return &PanicError{Value: r, Stack: debug.Stack()}
}

type state int

const (
	pending state = iota
	fulfilled
	rejected
)

type handler struct {
	onFulfilled func(any)
	onRejected  func(error)
}

// Promise is the native Future implementation. It is safe for concurrent use.
type Promise struct {
	claimed atomic.Bool

	mu       sync.Mutex
	state    state
	value    any
	err      error
	handlers []handler
	done     chan struct{}
}

func newPending() *Promise {
	return &Promise{done: make(chan struct{})}
}

// New creates a promise and runs executor synchronously with its resolve and
// reject functions. Only the first call to either function has any effect.
// A panic inside executor rejects the promise with a *PanicError.
func New(executor func(resolve func(any), reject func(error))) *Promise {
	p := newPending()
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.reject(Recovered(r))
			}
		}()
		executor(p.resolve, p.reject)
	}()
	return p
}

// Resolved returns a promise resolved with value. If value is a Future the
// returned promise adopts its state.
func Resolved(value any) *Promise {
	p := newPending()
	p.resolve(value)
	return p
}

// Rejected returns a promise rejected with reason.
func Rejected(reason error) *Promise {
	p := newPending()
	p.reject(reason)
	return p
}

func (p *Promise) resolve(value any) {
	if !p.claimed.CompareAndSwap(false, true) {
		return
	}
	p.adopt(value)
}

func (p *Promise) reject(reason error) {
	if !p.claimed.CompareAndSwap(false, true) {
		return
	}
	p.finish(rejected, nil, reason)
}

// adopt settles p with value, following nested futures until a plain value
// or a rejection is reached.
func (p *Promise) adopt(value any) {
	f, ok := value.(Future)
	if !ok {
		p.finish(fulfilled, value, nil)
		return
	}
	if isNil(f) {
		p.finish(rejected, nil, ErrNilFuture)
		return
	}
	if other, ok := f.(*Promise); ok && other == p {
		p.finish(rejected, nil, ErrSelfResolution)
		return
	}
	var once sync.Once
	f.Then(func(v any) {
		once.Do(func() { p.adopt(v) })
	}, func(err error) {
		once.Do(func() { p.finish(rejected, nil, err) })
	})
}

func (p *Promise) finish(s state, value any, err error) {
	if s == rejected && err == nil {
		err = ErrRejected
	}

	p.mu.Lock()
	if p.state != pending {
		p.mu.Unlock()
		return
	}
	p.state = s
	p.value = value
	p.err = err
	handlers := p.handlers
	p.handlers = nil
	close(p.done)
	p.mu.Unlock()

	for _, h := range handlers {
		h.run(s, value, err)
	}
}

func (h handler) run(s state, value any, err error) {
	if s == fulfilled {
		if h.onFulfilled != nil {
			h.onFulfilled(value)
		}
		return
	}
	if h.onRejected != nil {
		h.onRejected(err)
	}
}

// Then implements Future. A nil *Promise behaves as one rejected with
// ErrNilFuture.
func (p *Promise) Then(onFulfilled func(value any), onRejected func(reason error)) {
	h := handler{onFulfilled: onFulfilled, onRejected: onRejected}
	if p == nil {
		h.run(rejected, nil, ErrNilFuture)
		return
	}

	p.mu.Lock()
	if p.state == pending {
		p.handlers = append(p.handlers, h)
		p.mu.Unlock()
		return
	}
	s, value, err := p.state, p.value, p.err
	p.mu.Unlock()

	h.run(s, value, err)
}

// Done returns a channel that is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Result returns the settled value or rejection reason.
// It returns ErrPending if the promise has not settled yet.
func (p *Promise) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case fulfilled:
		return p.value, nil
	case rejected:
		return nil, p.err
	default:
		return nil, ErrPending
	}
}

// isNil reports whether f is nil or a typed nil behind the interface.
func isNil(f Future) bool {
	if f == nil {
		return true
	}
	switch rv := reflect.ValueOf(f); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// IsFuture reports whether v is a Future.
func IsFuture(v any) bool {
	_, ok := v.(Future)
	return ok
}

type outcome struct {
	value any
	err   error
}

// Await blocks until f settles or ctx is done. Values that are themselves
// futures are awaited in turn, so the result is always a plain value.
// A nil future fails with ErrNilFuture.
func Await(ctx context.Context, f Future) (any, error) {
	for {
		if isNil(f) {
			return nil, ErrNilFuture
		}
		value, err := awaitOnce(ctx, f)
		if err != nil {
			return nil, err
		}
		next, ok := value.(Future)
		if !ok {
			return value, nil
		}
		f = next
	}
}

func awaitOnce(ctx context.Context, f Future) (any, error) {
	if p, ok := f.(*Promise); ok {
		select {
		case <-p.done:
			return p.Result()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ch := make(chan outcome, 1)
	f.Then(func(v any) {
		select {
		case ch <- outcome{value: v}:
		default:
		}
	}, func(err error) {
		if err == nil {
			err = ErrRejected
		}
		select {
		case ch <- outcome{err: err}:
		default:
		}
	})

	select {
	case o := <-ch:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
