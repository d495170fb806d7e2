// Package testutil provides testing utilities for the spex engines.
package testutil

import (
	"sync"

	"github.com/Sternrassler/spex/pkg/promise"
)

// Deferred is a minimal channel based future that is deliberately unrelated
// to promise.Promise. Tests use it to drive the engines through a caller
// supplied adapter.
type Deferred struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewDeferred creates an unsettled Deferred.
func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Resolve settles d with value. Later calls are ignored.
func (d *Deferred) Resolve(value any) {
	d.once.Do(func() {
		d.value = value
		close(d.done)
	})
}

// Reject settles d with err. Later calls are ignored.
func (d *Deferred) Reject(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.done)
	})
}

// Then implements promise.Future. Callbacks always run on a new goroutine,
// the way an event-loop based implementation would defer them.
func (d *Deferred) Then(onFulfilled func(value any), onRejected func(reason error)) {
	go func() {
		<-d.done
		if d.err != nil {
			if onRejected != nil {
				onRejected(d.err)
			}
			return
		}
		if onFulfilled != nil {
			onFulfilled(d.value)
		}
	}()
}

// AdapterStats counts how often each adapter primitive was used.
type AdapterStats struct {
	mu       sync.Mutex
	Creates  int
	Resolves int
	Rejects  int
}

func (s *AdapterStats) inc(counter *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*counter++
}

// Snapshot returns the current counters.
func (s *AdapterStats) Snapshot() (creates, resolves, rejects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Creates, s.Resolves, s.Rejects
}

// NewDeferredAdapter returns a promise.Adapter built on Deferred together
// with the counters it updates.
func NewDeferredAdapter() (promise.Adapter, *AdapterStats) {
	stats := &AdapterStats{}

	adapter := promise.MustAdapter(
		func(executor promise.Executor) promise.Future {
			stats.inc(&stats.Creates)
			d := NewDeferred()
			executor(d.Resolve, d.Reject)
			return d
		},
		func(value any) promise.Future {
			stats.inc(&stats.Resolves)
			d := NewDeferred()
			d.Resolve(value)
			return d
		},
		func(reason error) promise.Future {
			stats.inc(&stats.Rejects)
			d := NewDeferred()
			d.Reject(reason)
			return d
		},
	)

	return adapter, stats
}
