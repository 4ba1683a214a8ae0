// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/console/lib/netutil"
)

// SessionReader turns the bytes a client sends on the session pipe
// into the blocking reads a synchronous processor expects.
//
// Pump runs on its own goroutine and moves transport bytes into a
// queue. ReadByte and Read run on the processor's goroutine: they
// drain the queue, and when it is empty they send a ReadRequest escape
// to the client and wait for more bytes. One goroutine pumps and one
// reads; SessionReader is not meant for multiple readers.
type SessionReader struct {
	source     *bufio.Reader
	transport  io.Reader
	output     io.Writer
	terminator []byte

	mu           sync.Mutex
	queue        []byte
	closed       bool
	disconnected bool

	// arrived carries one token whenever bytes are queued.
	arrived chan struct{}
	// done is closed by Close and by transport disconnect.
	done      chan struct{}
	closeOnce sync.Once

	requests atomic.Int64
}

// NewSessionReader returns a reader that pumps from transport and
// writes ReadRequest escapes to output. terminator is the line
// terminator the client appends to each line; when it is two bytes the
// pair is always queued together.
func NewSessionReader(transport io.Reader, output io.Writer, terminator string) *SessionReader {
	return &SessionReader{
		source:     bufio.NewReader(transport),
		transport:  transport,
		output:     output,
		terminator: []byte(terminator),
		arrived:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Pump copies transport bytes into the queue until the transport ends
// or ctx is cancelled. A transport that ends marks the reader
// disconnected; bytes already queued can still be read, then ReadByte
// returns io.EOF. Pump returns nil for cancellation and for an
// ordinary close by the peer.
func (r *SessionReader) Pump(ctx context.Context) error {
	if deadliner, ok := r.transport.(interface{ SetReadDeadline(time.Time) error }); ok {
		stop := context.AfterFunc(ctx, func() { deadliner.SetReadDeadline(time.Now()) })
		defer stop()
	}

	for {
		b, err := r.source.ReadByte()
		if err == nil && len(r.terminator) == 2 && b == r.terminator[0] {
			var second byte
			second, err = r.source.ReadByte()
			if err == nil {
				r.push(b, second)
				continue
			}
			r.push(b)
		} else if err == nil {
			r.push(b)
			continue
		}

		if ctx.Err() != nil {
			r.Close()
			return nil
		}
		r.disconnect()
		if netutil.IsExpectedCloseError(err) {
			return nil
		}
		return fmt.Errorf("reading session transport: %w", err)
	}
}

func (r *SessionReader) push(data ...byte) {
	r.mu.Lock()
	r.queue = append(r.queue, data...)
	r.mu.Unlock()
	select {
	case r.arrived <- struct{}{}:
	default:
	}
}

func (r *SessionReader) disconnect() {
	r.mu.Lock()
	r.disconnected = true
	r.mu.Unlock()
	r.Close()
}

// Close ends reading: once the queue drains, ReadByte returns io.EOF
// instead of waiting. It does not close the transport.
func (r *SessionReader) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.done)
	})
	return nil
}

// Connected reports whether the transport is still delivering. It
// turns false when the pump sees the peer go away.
func (r *SessionReader) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disconnected
}

// ReadRequests returns how many ReadRequest escapes have been sent.
func (r *SessionReader) ReadRequests() int64 {
	return r.requests.Load()
}

// PeekByte returns the next queued byte without consuming it. It never
// blocks and never requests input.
func (r *SessionReader) PeekByte() (byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return 0, false
	}
	return r.queue[0], true
}

// ReadByte returns the next byte from the client. If none is queued it
// sends one ReadRequest and waits for bytes to arrive or for the
// reader to close.
func (r *SessionReader) ReadByte() (byte, error) {
	requested := false
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			b := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return b, nil
		}
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return 0, io.EOF
		}

		if !requested {
			requested = true
			if err := r.requestInput(); err != nil {
				return 0, err
			}
		}
		select {
		case <-r.arrived:
		case <-r.done:
		}
	}
}

// Read blocks like ReadByte for the first byte, then returns whatever
// else is already queued, up to len(p).
func (r *SessionReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	p[0] = b

	r.mu.Lock()
	count := copy(p[1:], r.queue)
	r.queue = r.queue[count:]
	r.mu.Unlock()
	return 1 + count, nil
}

func (r *SessionReader) requestInput() error {
	r.requests.Add(1)
	if _, err := r.output.Write(ReadRequest.Sequence()); err != nil {
		if netutil.IsExpectedCloseError(err) {
			r.disconnect()
			return io.EOF
		}
		return fmt.Errorf("sending read request: %w", err)
	}
	return nil
}

// syncWriter serializes writes from the processor and from supervisor
// notices onto the session transport.
type syncWriter struct {
	mu     sync.Mutex
	writer io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Write(p)
}
