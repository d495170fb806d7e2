// Package stream consumes an io.Reader through the spex Page engine.
package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/spex/pkg/promise"
	"github.com/Sternrassler/spex/pkg/spex"
)

// DefaultReadSize is the chunk size used when ReadOptions.ReadSize is not set.
const DefaultReadSize = 4096

// chunkBuffer is the number of chunks read ahead of the receiver.
const chunkBuffer = 16

// Receiver is called once per page of chunks. index starts at 0 and delay
// is the time elapsed since Read started. A returned error, a panic or a
// rejected future stops the read with a *spex.PageError.
type Receiver func(ctx context.Context, index int, chunks [][]byte, delay time.Duration) (any, error)

// ReadOptions configures Read.
type ReadOptions struct {
	// ReadSize is the maximum size of one chunk.
	ReadSize int

	// ReadChunks delivers every chunk in its own receiver call. Otherwise a
	// call receives all chunks read since the previous one.
	ReadChunks bool

	// Closable closes the reader when it implements io.Closer and the read
	// is over, successful or not.
	Closable bool
}

// ReadResult is the value Read resolves with.
type ReadResult struct {
	// Calls is the number of receiver calls.
	Calls int

	// Reads is the number of chunks read.
	Reads int

	// Length is the total number of bytes read.
	Length int

	// Duration is the total run time.
	Duration time.Duration
}

type chunk struct {
	data []byte
	err  error
}

// Read drains r into receiver, one page of chunks at a time. A nil engine
// uses spex.Default(). The returned future resolves with *ReadResult once r
// reports io.EOF and rejects with *spex.PageError when reading or receiving
// fails. A read error is reported as the source having thrown.
func Read(ctx context.Context, engine *spex.Engine, r io.Reader, receiver Receiver, opts ReadOptions) promise.Future {
	if engine == nil {
		engine = spex.Default()
	}
	if r == nil {
		return engine.Adapter().Reject(&spex.ParamError{Name: "reader", Message: "must be an io.Reader"})
	}
	if receiver == nil {
		return engine.Adapter().Reject(&spex.ParamError{Name: "receiver", Message: "must be a function"})
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultReadSize
	}

	rd := &reader{
		chunks: make(chan chunk, chunkBuffer),
		stop:   make(chan struct{}),
		opts:   opts,
	}
	go rd.pump(r)

	dest := func(ctx context.Context, index int, data any, delay time.Duration) (any, error) {
		return receiver(ctx, index, data.([][]byte), delay)
	}

	page := engine.Page(ctx, rd.next,
		spex.WithDest(dest),
		spex.WithSourceLabel("stream.read"),
		spex.WithDestLabel("receiver"),
	)

	return engine.Adapter().Create(func(resolve func(any), reject func(error)) {
		go func() {
			v, err := promise.Await(context.Background(), page)
			close(rd.stop)
			if opts.Closable {
				if c, ok := r.(io.Closer); ok {
					if cerr := c.Close(); cerr != nil {
						log.Debug().Err(cerr).Msg("Stream close failed")
					}
				}
			}
			if err != nil {
				reject(err)
				return
			}

			res := v.(*spex.PageResult)
			log.Debug().
				Int("calls", res.Pages).
				Int("reads", rd.reads).
				Int("length", rd.length).
				Dur("duration", res.Duration).
				Msg("Stream read complete")
			resolve(&ReadResult{
				Calls:    res.Pages,
				Reads:    rd.reads,
				Length:   rd.length,
				Duration: res.Duration,
			})
		}()
	})
}

// reader turns a pumped io.Reader into a page source. next is only ever
// called by one run, so the counters need no lock.
type reader struct {
	chunks  chan chunk
	stop    chan struct{}
	opts    ReadOptions
	pending error

	reads  int
	length int
}

// pump reads r until EOF, an error or stop.
func (rd *reader) pump(r io.Reader) {
	defer close(rd.chunks)
	for {
		buf := make([]byte, rd.opts.ReadSize)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case rd.chunks <- chunk{data: buf[:n]}:
			case <-rd.stop:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				select {
				case rd.chunks <- chunk{err: err}:
				case <-rd.stop:
				}
			}
			return
		}
	}
}

func (rd *reader) next(ctx context.Context, _ int, _ any, _ time.Duration) (any, error) {
	if rd.pending != nil {
		return nil, rd.pending
	}

	var c chunk
	var ok bool
	select {
	case c, ok = <-rd.chunks:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if !ok {
		return spex.Done, nil
	}
	if c.err != nil {
		return nil, c.err
	}

	page := [][]byte{rd.take(c.data)}
	if rd.opts.ReadChunks {
		return page, nil
	}
	for {
		select {
		case c, ok = <-rd.chunks:
			if !ok {
				return page, nil
			}
			if c.err != nil {
				rd.pending = c.err
				return page, nil
			}
			page = append(page, rd.take(c.data))
		default:
			return page, nil
		}
	}
}

func (rd *reader) take(data []byte) []byte {
	rd.reads++
	rd.length += len(data)
	return data
}
