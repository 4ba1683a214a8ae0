// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/console/lib/netutil"
)

// InputSource supplies one line of user input per call, without its
// terminator. io.EOF means no more input will come.
type InputSource func(ctx context.Context) (string, error)

// LineInput reads lines from r. The read itself cannot be interrupted
// by ctx; a blocked terminal read ends when the process exits.
func LineInput(r io.Reader) InputSource {
	reader := bufio.NewReader(r)
	return func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := reader.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

// EchoClientConfig configures an EchoClient.
type EchoClientConfig struct {
	// Transport is the connected private session pipe. The client owns
	// it and closes it on Close.
	Transport io.ReadWriteCloser

	// Input answers ReadRequests.
	Input InputSource

	// Terminator is appended to each input line. Empty means
	// LineTerminator.
	Terminator string

	// PassThroughEscapes delivers every received byte to the caller,
	// including the ESC ReadRequest pair. By default that pair is
	// consumed and only terminal text is delivered.
	PassThroughEscapes bool

	Logger *slog.Logger
}

// EchoClient is the remote end of a console session: it returns the
// terminal text the service writes and answers each ReadRequest with a
// line from its InputSource, asynchronously so that output keeps
// flowing while the user types.
type EchoClient struct {
	transport   io.ReadWriteCloser
	source      *bufio.Reader
	input       InputSource
	terminator  string
	passThrough bool
	logger      *slog.Logger

	// escaped is set after an ESC whose command byte is still unread.
	escaped bool
	// held is a byte to deliver before reading more, or -1.
	held int

	requests  chan struct{}
	pending   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
}

// NewEchoClient returns a client for an already-connected session
// pipe.
func NewEchoClient(config EchoClientConfig) *EchoClient {
	terminator := config.Terminator
	if terminator == "" {
		terminator = LineTerminator
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EchoClient{
		transport:   config.Transport,
		source:      bufio.NewReader(config.Transport),
		input:       config.Input,
		terminator:  terminator,
		passThrough: config.PassThroughEscapes,
		logger:      logger,
		held:        -1,
		requests:    make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ReceiveNext returns the next byte for display. It returns io.EOF
// when the service closes the session.
func (c *EchoClient) ReceiveNext() (byte, error) {
	if c.held >= 0 {
		b := byte(c.held)
		c.held = -1
		return b, nil
	}
	for {
		b, err := c.source.ReadByte()
		if err != nil {
			if c.escaped && !c.passThrough {
				c.escaped = false
				return EscapeCharacter, nil
			}
			return 0, err
		}

		if c.escaped {
			c.escaped = false
			if EscapeCommand(b) == ReadRequest {
				c.requestInput()
				if c.passThrough {
					return b, nil
				}
				continue
			}
			if c.passThrough {
				return b, nil
			}
			// An ordinary terminal escape such as ESC [. Deliver the
			// held-back ESC now and this byte next.
			c.held = int(b)
			return EscapeCharacter, nil
		}

		if b == EscapeCharacter {
			c.escaped = true
			if c.passThrough {
				return b, nil
			}
			continue
		}
		return b, nil
	}
}

// requestInput queues one input request. A request arriving while the
// previous one is still waiting on the user is dropped.
func (c *EchoClient) requestInput() {
	c.startOnce.Do(func() {
		go c.inputLoop()
	})
	if c.pending.CompareAndSwap(false, true) {
		c.requests <- struct{}{}
	}
}

func (c *EchoClient) inputLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.requests:
		}

		line, err := c.input(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info("input ended, closing session write side")
				c.closeWrite()
				return
			}
			c.logger.Warn("reading input", "error", err)
			c.pending.Store(false)
			continue
		}

		c.pending.Store(false)
		if _, err := io.WriteString(c.transport, line+c.terminator); err != nil {
			if !netutil.IsExpectedCloseError(err) && c.ctx.Err() == nil {
				c.logger.Warn("sending input line", "error", err)
			}
			return
		}
	}
}

func (c *EchoClient) closeWrite() {
	if halfCloser, ok := c.transport.(interface{ CloseWrite() error }); ok {
		if err := halfCloser.CloseWrite(); err != nil {
			c.logger.Warn("closing session write side", "error", err)
		}
		return
	}
	c.transport.Close()
}

// Run copies session output to display until the session ends or ctx
// is cancelled. The session ending is not an error.
func (c *EchoClient) Run(ctx context.Context, display io.Writer) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()
	defer c.Close()

	out := bufio.NewWriter(display)
	for {
		b, err := c.ReceiveNext()
		if err != nil {
			if flushErr := out.Flush(); flushErr != nil {
				return fmt.Errorf("writing to display: %w", flushErr)
			}
			if ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				return nil
			}
			return fmt.Errorf("reading session: %w", err)
		}
		if err := out.WriteByte(b); err != nil {
			return fmt.Errorf("writing to display: %w", err)
		}
		if c.source.Buffered() == 0 && c.held < 0 {
			if err := out.Flush(); err != nil {
				return fmt.Errorf("writing to display: %w", err)
			}
		}
	}
}

// Close stops the input worker and closes the transport. A worker
// blocked inside the InputSource is not waited for.
func (c *EchoClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.transport.Close()
	})
	return err
}
