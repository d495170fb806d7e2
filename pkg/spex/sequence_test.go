package spex

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/spex/internal/testutil"
	"github.com/Sternrassler/spex/pkg/promise"
)

func requireSequenceError(t *testing.T, err error) *SequenceError {
	t.Helper()
	var se *SequenceError
	require.ErrorAs(t, err, &se)
	return se
}

func TestSequence_InvalidSource(t *testing.T) {
	e := newTestEngine(t)

	_, err := await(t, e.Sequence(context.Background(), nil))
	var pe *ParamError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, "parameter 'source' must be a function", err.Error())
}

func TestSequence_Limit(t *testing.T) {
	e := newTestEngine(t)

	for _, limit := range []int{1, 2, 10, 100} {
		src := testutil.NewMockSource()
		src.Fallback = testutil.MockStep{Value: 123}

		v, err := await(t, e.Sequence(context.Background(), src.Produce, WithLimit(limit)))
		require.NoError(t, err)

		res := v.(*SequenceResult)
		assert.Equal(t, limit, res.Total)
		assert.Equal(t, limit, src.GetCallCount())
		assert.GreaterOrEqual(t, res.Duration, time.Duration(0))
		assert.Nil(t, res.Items)
	}
}

func TestSequence_Idempotent(t *testing.T) {
	e := newTestEngine(t)
	source := func(ctx context.Context, index int, data any, delay time.Duration) (any, error) {
		return index, nil
	}

	first, err := await(t, e.Sequence(context.Background(), source, WithLimit(5), WithTrack(true)))
	require.NoError(t, err)
	second, err := await(t, e.Sequence(context.Background(), source, WithLimit(5), WithTrack(true)))
	require.NoError(t, err)

	assert.Equal(t, first.(*SequenceResult).Items, second.(*SequenceResult).Items)
	assert.Equal(t, first.(*SequenceResult).Total, second.(*SequenceResult).Total)
}

func TestSequence_Tracking(t *testing.T) {
	e := newTestEngine(t)

	source := func(ctx context.Context, index int, data any, delay time.Duration) (any, error) {
		if index < 3 {
			return index, nil
		}
		return Done, nil
	}

	var tracked []any
	dest := func(ctx context.Context, index int, data any, delay time.Duration) (any, error) {
		tracked = append(tracked, data)
		if index > 0 {
			return promise.Resolved(nil), nil
		}
		return nil, nil
	}

	v, err := await(t, e.Sequence(context.Background(), source, WithDest(dest), WithTrack(true)))
	require.NoError(t, err)

	res := v.(*SequenceResult)
	assert.Equal(t, []any{0, 1, 2}, res.Items)
	assert.Equal(t, res.Items, tracked)
	assert.Equal(t, 3, res.Total)
}

func TestSequence_NilIsAnItem(t *testing.T) {
	e := newTestEngine(t)
	src := testutil.NewValuesSource(Done, nil, nil)

	v, err := await(t, e.Sequence(context.Background(), src.Produce, WithTrack(true)))
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil}, v.(*SequenceResult).Items)
}

func TestSequence_DataAndDelay(t *testing.T) {
	e := newTestEngine(t)
	src := testutil.NewValuesSource(Done, "a", "b", "c")

	var delays []time.Duration
	var mu sync.Mutex
	source := func(ctx context.Context, index int, data any, delay time.Duration) (any, error) {
		mu.Lock()
		delays = append(delays, delay)
		mu.Unlock()
		return src.Produce(ctx, index, data, delay)
	}

	_, err := await(t, e.Sequence(context.Background(), source))
	require.NoError(t, err)

	assert.Equal(t, []any{nil, "a", "b", "c"}, src.Data)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
	}
}

type ctxKey struct{}

func TestSequence_Context(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.WithValue(context.Background(), ctxKey{}, "receiver")

	src := testutil.NewValuesSource(Done, 1)
	dst := testutil.NewMockSource()

	_, err := await(t, e.Sequence(ctx, src.Produce, WithDest(dst.Produce)))
	require.NoError(t, err)

	for _, c := range append(src.Contexts, dst.Contexts...) {
		assert.Equal(t, "receiver", c.Value(ctxKey{}))
	}
}

func TestSequence_LongRun(t *testing.T) {
	e := newTestEngine(t)
	source := func(ctx context.Context, index int, data any, delay time.Duration) (any, error) {
		if index%2 == 0 {
			return promise.Resolved(index), nil
		}
		return index, nil
	}

	v, err := await(t, e.Sequence(context.Background(), source, WithLimit(20000)))
	require.NoError(t, err)
	assert.Equal(t, 20000, v.(*SequenceResult).Total)
}

func TestSequence_Failures(t *testing.T) {
	sourceErr := errors.New("source error")
	destErr := errors.New("destination error")

	returns := func(v any, err error) Source {
		return func(context.Context, int, any, time.Duration) (any, error) { return v, err }
	}

	tests := []struct {
		name      string
		source    Source
		dest      Dest
		opts      []Option
		code      int
		reason    string
		cause     error
		hasSource bool
		destValue any
	}{
		{
			name:      "source throws anonymous",
			source:    returns(nil, sourceErr),
			code:      SequenceSourceThrew,
			reason:    "Source <anonymous> threw an error at index 0.",
			cause:     sourceErr,
			hasSource: true,
		},
		{
			name:      "source throws labeled",
			source:    returns(nil, sourceErr),
			opts:      []Option{WithSourceLabel("source")},
			code:      SequenceSourceThrew,
			reason:    "Source 'source' threw an error at index 0.",
			cause:     sourceErr,
			hasSource: true,
		},
		{
			name:      "source rejects",
			source:    returns(promise.Rejected(sourceErr), nil),
			opts:      []Option{WithSourceLabel("source")},
			code:      SequenceSourceRejected,
			reason:    "Source 'source' returned a rejection at index 0.",
			cause:     sourceErr,
			hasSource: true,
		},
		{
			name:      "source panics",
			source:    func(context.Context, int, any, time.Duration) (any, error) { panic(sourceErr) },
			code:      SequenceSourceThrew,
			reason:    "Source <anonymous> threw an error at index 0.",
			cause:     sourceErr,
			hasSource: true,
		},
		{
			name:   "dest throws",
			source: returns(123, nil),
			dest: func(context.Context, int, any, time.Duration) (any, error) {
				return nil, destErr
			},
			opts:      []Option{WithDestLabel("dest")},
			code:      SequenceDestThrew,
			reason:    "Destination 'dest' threw an error at index 0.",
			cause:     destErr,
			destValue: 123,
		},
		{
			name:   "dest rejects",
			source: returns(123, nil),
			dest: func(context.Context, int, any, time.Duration) (any, error) {
				return promise.Rejected(destErr), nil
			},
			opts:      []Option{WithDestLabel("dest")},
			code:      SequenceDestRejected,
			reason:    "Destination 'dest' returned a rejection at index 0.",
			cause:     destErr,
			destValue: 123,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			opts := tt.opts
			if tt.dest != nil {
				opts = append(opts, WithDest(tt.dest))
			}

			_, err := await(t, e.Sequence(context.Background(), tt.source, opts...))
			se := requireSequenceError(t, err)

			assert.Equal(t, KindSequence, se.Kind())
			assert.Equal(t, 0, se.Index())
			assert.Equal(t, tt.code, se.Code())
			assert.Equal(t, tt.reason, se.Reason())
			assert.ErrorIs(t, se, tt.cause)
			assert.Contains(t, se.Error(), tt.cause.Error())
			assert.GreaterOrEqual(t, se.Duration(), time.Duration(0))

			src, hasSource := se.Source()
			assert.Equal(t, tt.hasSource, hasSource)
			assert.Nil(t, src)

			dst, hasDest := se.Dest()
			assert.Equal(t, !tt.hasSource, hasDest)
			assert.Equal(t, tt.destValue, dst)

			assert.Contains(t, se.String(), "reason: "+tt.reason)
		})
	}
}

func TestSequence_FailureIndex(t *testing.T) {
	e := newTestEngine(t)
	src := testutil.NewValuesSource(Done, "a", "b")
	src.SetStep(2, testutil.MockStep{Err: errors.New("third")})

	_, err := await(t, e.Sequence(context.Background(), src.Produce))
	se := requireSequenceError(t, err)

	assert.Equal(t, 2, se.Index())
	data, ok := se.Source()
	assert.True(t, ok)
	assert.Equal(t, "b", data)
}

func TestSequence_SourceRejectsWithBatch(t *testing.T) {
	e := newTestEngine(t)
	source := func(ctx context.Context, index int, data any, delay time.Duration) (any, error) {
		return e.Batch(ctx, []any{promise.Rejected(errors.New("123"))}), nil
	}

	_, err := await(t, e.Sequence(context.Background(), source))
	se := requireSequenceError(t, err)

	assert.Equal(t, SequenceSourceRejected, se.Code())
	assert.Equal(t, "123", se.Error())

	var be *BatchError
	assert.ErrorAs(t, se, &be)
	assert.Contains(t, se.Format(0), "error: BatchError {")
	assert.NotEqual(t, se.Format(0), se.Format(1))
	assert.True(t, strings.HasPrefix(strings.Split(se.Format(1), "\n")[1], "        message:"))
}

func TestSequence_NilFuture(t *testing.T) {
	e := newTestEngine(t)
	var nilPromise *promise.Promise

	source := func(ctx context.Context, index int, data any, delay time.Duration) (any, error) {
		return nilPromise, nil
	}
	_, err := await(t, e.Sequence(context.Background(), source))
	se := requireSequenceError(t, err)
	assert.Equal(t, SequenceSourceRejected, se.Code())
	assert.ErrorIs(t, se.Cause(), promise.ErrNilFuture)

	dest := func(ctx context.Context, index int, data any, delay time.Duration) (any, error) {
		return nilPromise, nil
	}
	_, err = await(t, e.Sequence(context.Background(), testutil.NewValuesSource(Done, 1).Produce, WithDest(dest)))
	se = requireSequenceError(t, err)
	assert.Equal(t, SequenceDestRejected, se.Code())
	assert.ErrorIs(t, se.Cause(), promise.ErrNilFuture)
}

func TestSequence_NonPositiveLimitIsUnbounded(t *testing.T) {
	e := newTestEngine(t)

	for _, limit := range []int{0, -1} {
		v, err := await(t, e.Sequence(context.Background(), testutil.NewValuesSource(Done, 1, 2, 3).Produce, WithLimit(limit)))
		require.NoError(t, err)
		assert.Equal(t, 3, v.(*SequenceResult).Total, "limit %d", limit)
	}
}
