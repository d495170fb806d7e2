package promise

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidAdapter is returned when an adapter is built from invalid parts.
var ErrInvalidAdapter = errors.New("invalid promise adapter")

// Executor receives the settle functions of a future being created.
type Executor func(resolve func(any), reject func(error))

// CreateFunc creates a future and runs executor exactly once.
type CreateFunc func(executor Executor) Future

// ResolveFunc returns a future resolved with value.
type ResolveFunc func(value any) Future

// RejectFunc returns a future rejected with reason.
type RejectFunc func(reason error) Future

// Adapter normalizes a future implementation into the three primitives the
// engines need.
//
// Implementations must guarantee that every future they return settles at
// most once and that Create invokes its executor exactly once. Adapters built
// with NewAdapter enforce the first guarantee on behalf of the caller.
type Adapter interface {
	Create(executor Executor) Future
	Resolve(value any) Future
	Reject(reason error) Future
}

// NewAdapter builds an Adapter from three caller supplied functions.
func NewAdapter(create CreateFunc, resolve ResolveFunc, reject RejectFunc) (Adapter, error) {
	if create == nil {
		return nil, fmt.Errorf("%w: create must be a function", ErrInvalidAdapter)
	}
	if resolve == nil {
		return nil, fmt.Errorf("%w: resolve must be a function", ErrInvalidAdapter)
	}
	if reject == nil {
		return nil, fmt.Errorf("%w: reject must be a function", ErrInvalidAdapter)
	}

	return &funcAdapter{
		create:  create,
		resolve: resolve,
		reject:  reject,
	}, nil
}

// MustAdapter is like NewAdapter but panics on invalid input.
func MustAdapter(create CreateFunc, resolve ResolveFunc, reject RejectFunc) Adapter {
	a, err := NewAdapter(create, resolve, reject)
	if err != nil {
		panic(err)
	}
	return a
}

type funcAdapter struct {
	create  CreateFunc
	resolve ResolveFunc
	reject  RejectFunc
}

func (a *funcAdapter) Create(executor Executor) Future {
	return guard(a.create(func(resolve func(any), reject func(error)) {
		var once sync.Once
		res := func(v any) { once.Do(func() { resolve(v) }) }
		rej := func(err error) {
			if err == nil {
				err = ErrRejected
			}
			once.Do(func() { reject(err) })
		}

		defer func() {
			if r := recover(); r != nil {
				rej(Recovered(r))
			}
		}()
		executor(res, rej)
	}))
}

func (a *funcAdapter) Resolve(value any) Future {
	return guard(a.resolve(value))
}

func (a *funcAdapter) Reject(reason error) Future {
	if reason == nil {
		reason = ErrRejected
	}
	return guard(a.reject(reason))
}

// onceFuture makes sure each registration observes a single settlement even
// if the wrapped implementation calls back more than once.
type onceFuture struct {
	Future
}

func guard(f Future) Future {
	if isNil(f) {
		return Rejected(fmt.Errorf("%w: adapter returned a nil future", ErrInvalidAdapter))
	}
	if _, ok := f.(*Promise); ok {
		return f
	}
	return onceFuture{Future: f}
}

func (f onceFuture) Then(onFulfilled func(value any), onRejected func(reason error)) {
	var once sync.Once
	f.Future.Then(func(v any) {
		once.Do(func() {
			if onFulfilled != nil {
				onFulfilled(v)
			}
		})
	}, func(err error) {
		if err == nil {
			err = ErrRejected
		}
		once.Do(func() {
			if onRejected != nil {
				onRejected(err)
			}
		})
	})
}

type nativeAdapter struct{}

func (nativeAdapter) Create(executor Executor) Future { return New(executor) }
func (nativeAdapter) Resolve(value any) Future        { return Resolved(value) }
func (nativeAdapter) Reject(reason error) Future      { return Rejected(reason) }

// Native returns the adapter backed by *Promise. It is the default used by
// the engines when no adapter is configured.
func Native() Adapter {
	return nativeAdapter{}
}
