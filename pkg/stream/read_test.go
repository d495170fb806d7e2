package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/spex/pkg/promise"
	"github.com/Sternrassler/spex/pkg/spex"
)

var errBoom = errors.New("boom")

func await(t *testing.T, f promise.Future) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return promise.Await(ctx, f)
}

// collector records every chunk handed to the receiver.
type collector struct {
	calls  int
	chunks [][]byte
}

func (c *collector) receive(_ context.Context, _ int, chunks [][]byte, _ time.Duration) (any, error) {
	c.calls++
	c.chunks = append(c.chunks, chunks...)
	return nil, nil
}

func (c *collector) text() string {
	var sb strings.Builder
	for _, ch := range c.chunks {
		sb.Write(ch)
	}
	return sb.String()
}

type closeTracker struct {
	io.Reader
	closed atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

func TestRead_ChunkPerCall(t *testing.T) {
	c := &collector{}
	v, err := await(t, Read(context.Background(), nil, strings.NewReader("hello world"), c.receive,
		ReadOptions{ReadSize: 4, ReadChunks: true}))
	require.NoError(t, err)

	res := v.(*ReadResult)
	assert.Equal(t, 3, res.Reads)
	assert.Equal(t, 3, res.Calls)
	assert.Equal(t, 11, res.Length)
	assert.Equal(t, "hello world", c.text())
	assert.Equal(t, 3, c.calls)
}

func TestRead_BufferedChunks(t *testing.T) {
	c := &collector{}
	v, err := await(t, Read(context.Background(), nil, strings.NewReader("hello world"), c.receive,
		ReadOptions{ReadSize: 2}))
	require.NoError(t, err)

	res := v.(*ReadResult)
	assert.Equal(t, 6, res.Reads)
	assert.Equal(t, 11, res.Length)
	assert.GreaterOrEqual(t, res.Calls, 1)
	assert.LessOrEqual(t, res.Calls, 6)
	assert.Equal(t, res.Calls, c.calls)
	assert.Equal(t, "hello world", c.text())
}

func TestRead_DefaultReadSize(t *testing.T) {
	input := strings.Repeat("x", DefaultReadSize+1)
	c := &collector{}
	v, err := await(t, Read(context.Background(), nil, strings.NewReader(input), c.receive,
		ReadOptions{ReadChunks: true}))
	require.NoError(t, err)

	res := v.(*ReadResult)
	assert.Equal(t, 2, res.Reads)
	assert.Len(t, c.chunks[0], DefaultReadSize)
	assert.Len(t, c.chunks[1], 1)
}

func TestRead_Empty(t *testing.T) {
	c := &collector{}
	v, err := await(t, Read(context.Background(), nil, strings.NewReader(""), c.receive, ReadOptions{}))
	require.NoError(t, err)

	res := v.(*ReadResult)
	assert.Zero(t, res.Calls)
	assert.Zero(t, res.Reads)
	assert.Zero(t, res.Length)
}

func TestRead_OneByteReader(t *testing.T) {
	c := &collector{}
	v, err := await(t, Read(context.Background(), nil, iotest.OneByteReader(strings.NewReader("abcd")), c.receive,
		ReadOptions{ReadChunks: true}))
	require.NoError(t, err)

	res := v.(*ReadResult)
	assert.Equal(t, 4, res.Reads)
	assert.Equal(t, 4, res.Calls)
	assert.Equal(t, "abcd", c.text())
}

func TestRead_ReaderError(t *testing.T) {
	tests := []struct {
		name  string
		r     io.Reader
		index int
	}{
		{"immediately", iotest.ErrReader(errBoom), 0},
		{"after data", io.MultiReader(strings.NewReader("abc"), iotest.ErrReader(errBoom)), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &collector{}
			_, err := await(t, Read(context.Background(), nil, tt.r, c.receive, ReadOptions{ReadChunks: true}))

			var pe *spex.PageError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, spex.PageSourceThrew, pe.Code())
			assert.Equal(t, tt.index, pe.Index())
			assert.ErrorIs(t, pe.Cause(), errBoom)
			assert.Equal(t, tt.index, c.calls)
		})
	}
}

func TestRead_ReceiverFailure(t *testing.T) {
	receiver := func(context.Context, int, [][]byte, time.Duration) (any, error) {
		return nil, errBoom
	}

	_, err := await(t, Read(context.Background(), nil, strings.NewReader("abc"), receiver, ReadOptions{}))

	var pe *spex.PageError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, spex.PageDestThrew, pe.Code())
	assert.Equal(t, 0, pe.Index())
	assert.Equal(t, "Destination 'receiver' threw an error at index 0.", pe.Reason())
}

func TestRead_Closable(t *testing.T) {
	for _, closable := range []bool{true, false} {
		r := &closeTracker{Reader: strings.NewReader("abc")}
		c := &collector{}

		_, err := await(t, Read(context.Background(), nil, r, c.receive, ReadOptions{Closable: closable}))
		require.NoError(t, err)
		assert.Equal(t, closable, r.closed.Load())
	}
}

func TestRead_ClosedOnFailure(t *testing.T) {
	r := &closeTracker{Reader: iotest.ErrReader(errBoom)}
	c := &collector{}

	_, err := await(t, Read(context.Background(), nil, r, c.receive, ReadOptions{Closable: true}))
	require.Error(t, err)
	assert.True(t, r.closed.Load())
}

func TestRead_InvalidParameters(t *testing.T) {
	c := &collector{}

	_, err := await(t, Read(context.Background(), nil, nil, c.receive, ReadOptions{}))
	assert.ErrorIs(t, err, spex.ErrInvalidParameter)

	_, err = await(t, Read(context.Background(), nil, strings.NewReader("abc"), nil, ReadOptions{}))
	var pe *spex.ParamError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "receiver", pe.Name)
}
