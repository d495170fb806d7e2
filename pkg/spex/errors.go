package spex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrInvalidParameter is wrapped by every *ParamError.
var ErrInvalidParameter = errors.New("invalid parameter")

// ErrNonSlicePage is the cause recorded when a page source returns something
// other than a slice, an array or the end marker.
var ErrNonSlicePage = errors.New("unexpected data returned from the source")

// ParamError reports an invalid argument passed to an engine entry point.
// It is never wrapped into a BatchError, PageError or SequenceError.
type ParamError struct {
	Name    string
	Message string
}

func newParamError(name, message string) *ParamError {
	return &ParamError{Name: name, Message: message}
}

// Error implements the error interface.
func (e *ParamError) Error() string {
	return fmt.Sprintf("parameter '%s' %s", e.Name, e.Message)
}

// Unwrap returns ErrInvalidParameter.
func (e *ParamError) Unwrap() error {
	return ErrInvalidParameter
}

// Kind identifies a Failure variant.
type Kind string

const (
	// KindBatch is reported by Batch.
	KindBatch Kind = "BatchError"

	// KindPage is reported by Page.
	KindPage Kind = "PageError"

	// KindSequence is reported by Sequence.
	KindSequence Kind = "SequenceError"
)

// engine returns the short engine name used in logs and metric labels.
func (k Kind) engine() string {
	return strings.ToLower(strings.TrimSuffix(string(k), "Error"))
}

// Failure is implemented by the three structured engine errors.
type Failure interface {
	error
	Kind() Kind
	Index() int
	Duration() time.Duration
	Cause() error
	Reason() string
	Format(level int) string
}

// Page reason codes.
const (
	PageRejected           = 0
	PageSourceRejected     = 1
	PageSourceThrew        = 2
	PageDestRejected       = 3
	PageDestThrew          = 4
	PageSourceNonSliceData = 5
)

var pageReasons = map[int]string{
	PageRejected:           "Page with index %d rejected.",
	PageSourceRejected:     "Source %s returned a rejection at index %d.",
	PageSourceThrew:        "Source %s threw an error at index %d.",
	PageDestRejected:       "Destination %s returned a rejection at index %d.",
	PageDestThrew:          "Destination %s threw an error at index %d.",
	PageSourceNonSliceData: "Source %s returned a non-array value at index %d.",
}

// Sequence reason codes.
const (
	SequenceSourceRejected = 0
	SequenceSourceThrew    = 1
	SequenceDestRejected   = 2
	SequenceDestThrew      = 3
)

var sequenceReasons = map[int]string{
	SequenceSourceRejected: "Source %s returned a rejection at index %d.",
	SequenceSourceThrew:    "Source %s threw an error at index %d.",
	SequenceDestRejected:   "Destination %s returned a rejection at index %d.",
	SequenceDestThrew:      "Destination %s threw an error at index %d.",
}

const anonymous = "<anonymous>"

func quoteLabel(label string) string {
	if label == "" {
		return anonymous
	}
	return "'" + label + "'"
}

// failureEvent is the snapshot taken at the point a step fails.
type failureEvent struct {
	index     int
	err       error
	source    any
	hasSource bool
	dest      any
	hasDest   bool
}

func sourceFailure(index int, err error, data any) failureEvent {
	return failureEvent{index: index, err: err, source: data, hasSource: true}
}

func destFailure(index int, err error, data any) failureEvent {
	return failureEvent{index: index, err: err, dest: data, hasDest: true}
}

// PageError is the rejection reason of a failed Page run.
type PageError struct {
	event    failureEvent
	code     int
	reason   string
	duration time.Duration
}

func newPageError(e failureEvent, code int, label string, duration time.Duration) *PageError {
	var reason string
	if code == PageRejected {
		reason = fmt.Sprintf(pageReasons[code], e.index)
	} else {
		reason = fmt.Sprintf(pageReasons[code], quoteLabel(label), e.index)
	}
	return &PageError{event: e, code: code, reason: reason, duration: duration}
}

// Error returns the message of the underlying cause.
func (e *PageError) Error() string { return causeMessage(e.event.err) }

// Unwrap returns the underlying cause.
func (e *PageError) Unwrap() error { return e.event.err }

// Kind returns KindPage.
func (e *PageError) Kind() Kind { return KindPage }

// Index is the step index at which the failure occurred.
func (e *PageError) Index() int { return e.event.index }

// Duration is the time elapsed from the start of the run until the failure.
func (e *PageError) Duration() time.Duration { return e.duration }

// Cause is the error returned by the failing stage or its rejection reason.
func (e *PageError) Cause() error { return e.event.err }

// Reason is the text produced from the reason code.
func (e *PageError) Reason() string { return e.reason }

// Code is the reason code.
func (e *PageError) Code() int { return e.code }

// Source returns the data that was passed into the source function, when
// the failure occurred in the source stage.
func (e *PageError) Source() (any, bool) { return e.event.source, e.event.hasSource }

// Dest returns the page that was passed into the destination function, when
// the failure occurred in the destination stage.
func (e *PageError) Dest() (any, bool) { return e.event.dest, e.event.hasDest }

// Format renders a multi-line description; level controls the indentation.
func (e *PageError) Format(level int) string {
	return formatStep(KindPage, e, level)
}

// String is Format(0).
func (e *PageError) String() string { return e.Format(0) }

// SequenceError is the rejection reason of a failed Sequence run.
type SequenceError struct {
	event    failureEvent
	code     int
	reason   string
	duration time.Duration
}

func newSequenceError(e failureEvent, code int, label string, duration time.Duration) *SequenceError {
	return &SequenceError{
		event:    e,
		code:     code,
		reason:   fmt.Sprintf(sequenceReasons[code], quoteLabel(label), e.index),
		duration: duration,
	}
}

// Error returns the message of the underlying cause.
func (e *SequenceError) Error() string { return causeMessage(e.event.err) }

// Unwrap returns the underlying cause.
func (e *SequenceError) Unwrap() error { return e.event.err }

// Kind returns KindSequence.
func (e *SequenceError) Kind() Kind { return KindSequence }

// Index is the step index at which the failure occurred.
func (e *SequenceError) Index() int { return e.event.index }

// Duration is the time elapsed from the start of the run until the failure.
func (e *SequenceError) Duration() time.Duration { return e.duration }

// Cause is the error returned by the failing stage or its rejection reason.
func (e *SequenceError) Cause() error { return e.event.err }

// Reason is the text produced from the reason code.
func (e *SequenceError) Reason() string { return e.reason }

// Code is the reason code.
func (e *SequenceError) Code() int { return e.code }

// Source returns the data that was passed into the source function, when
// the failure occurred in the source stage.
func (e *SequenceError) Source() (any, bool) { return e.event.source, e.event.hasSource }

// Dest returns the item that was passed into the destination function, when
// the failure occurred in the destination stage.
func (e *SequenceError) Dest() (any, bool) { return e.event.dest, e.event.hasDest }

// Format renders a multi-line description; level controls the indentation.
func (e *SequenceError) Format(level int) string {
	return formatStep(KindSequence, e, level)
}

// String is Format(0).
func (e *SequenceError) String() string { return e.Format(0) }

// Stat summarizes a batch run.
type Stat struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// BatchError is the rejection reason of a Batch run with at least one
// failed item.
type BatchError struct {
	data       []Outcome
	stat       Stat
	first      error
	firstIndex int

	errorsOnce sync.Once
	errs       []error
}

func newBatchError(data []Outcome, stat Stat) *BatchError {
	e := &BatchError{data: data, stat: stat, firstIndex: -1}
	for i, o := range data {
		if !o.Success {
			e.first = o.Err()
			e.firstIndex = i
			break
		}
	}
	return e
}

// Error returns the message of the first failure.
func (e *BatchError) Error() string { return causeMessage(e.first) }

// Unwrap returns the first failure.
func (e *BatchError) Unwrap() error { return e.first }

// Kind returns KindBatch.
func (e *BatchError) Kind() Kind { return KindBatch }

// Index is the input index of the first failed item.
func (e *BatchError) Index() int { return e.firstIndex }

// Duration is the total duration of the batch.
func (e *BatchError) Duration() time.Duration { return e.stat.Duration }

// Cause is the first failure in index order.
func (e *BatchError) Cause() error { return e.first }

// First is an alias of Cause kept for quick inspection.
func (e *BatchError) First() error { return e.first }

// Reason summarizes the failure count.
func (e *BatchError) Reason() string {
	return fmt.Sprintf("%d of %d items failed, first at index %d.", e.stat.Failed, e.stat.Total, e.firstIndex)
}

// Data returns one outcome per input item, in input order.
func (e *BatchError) Data() []Outcome { return e.data }

// Stat returns the aggregate statistics.
func (e *BatchError) Stat() Stat { return e.stat }

// Errors returns the failure of every failed item, in input order.
func (e *BatchError) Errors() []error {
	e.errorsOnce.Do(func() {
		for _, o := range e.data {
			if !o.Success {
				e.errs = append(e.errs, o.Err())
			}
		}
	})
	return e.errs
}

// Format renders a multi-line description; level controls the indentation.
func (e *BatchError) Format(level int) string {
	if level < 0 {
		level = 0
	}
	gap0, gap1, gap2 := messageGap(level), messageGap(level+1), messageGap(level+2)

	lines := []string{
		"BatchError {",
		gap1 + "stat: { total: " + strconv.Itoa(e.stat.Total) +
			", succeeded: " + strconv.Itoa(e.stat.Succeeded) +
			", failed: " + strconv.Itoa(e.stat.Failed) +
			", duration: " + e.stat.Duration.String() + " }",
		gap1 + "errors: [",
	}
	for i, o := range e.data {
		if !o.Success {
			lines = append(lines, gap2+strconv.Itoa(i)+": "+formatError(o.Err(), level+2))
		}
	}
	lines = append(lines, gap1+"]", gap0+"}")
	return strings.Join(lines, "\n")
}

// String is Format(0).
func (e *BatchError) String() string { return e.Format(0) }

func formatStep(kind Kind, f Failure, level int) string {
	if level < 0 {
		level = 0
	}
	gap0, gap1 := messageGap(level), messageGap(level+1)

	lines := []string{
		string(kind) + " {",
		gap1 + "message: " + strconv.Quote(f.Error()),
		gap1 + "reason: " + f.Reason(),
		gap1 + "index: " + strconv.Itoa(f.Index()),
		gap1 + "duration: " + f.Duration().String(),
		gap1 + "error: " + formatError(f.Cause(), level+1),
		gap0 + "}",
	}
	return strings.Join(lines, "\n")
}

func formatError(err error, level int) string {
	if f, ok := err.(Failure); ok {
		return f.Format(level)
	}
	return causeMessage(err)
}

func messageGap(level int) string {
	return strings.Repeat(" ", level*4)
}

func causeMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
