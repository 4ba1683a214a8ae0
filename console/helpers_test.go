// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/console/lib/testutil"
)

const testTimeout = 5 * time.Second

// socketPair returns both ends of a connected unix socket.
func socketPair(t *testing.T) (server, client *net.UnixConn) {
	t.Helper()
	endpoint := Endpoint{RunDirectory: testutil.SocketDir(t)}
	listener, err := endpoint.Listen("pair")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan *net.UnixConn, 1)
	go func() {
		conn, err := listener.AcceptUnix()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	client, err = endpoint.Dial(context.Background(), "pair")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	server = testutil.RequireReceive(t, accepted, testTimeout, "accepting pair connection")
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

// lockedBuffer is a bytes sink safe for concurrent writes and reads.
type lockedBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// lineProcessor is a minimal Processor: it writes greeting, answers
// every input line with "echo: <line>", and ends on "quit". Raw lines,
// terminator included, are reported on received.
type lineProcessor struct {
	greeting string
	received chan string

	mu     sync.Mutex
	input  io.Reader
	output io.Writer

	stopOnce sync.Once
	stopped  chan struct{}
	runs     chan struct{}
}

func newLineProcessor(greeting string) *lineProcessor {
	return &lineProcessor{
		greeting: greeting,
		received: make(chan string, 16),
		stopped:  make(chan struct{}),
		runs:    make(chan struct{}, 16),
	}
}

func (p *lineProcessor) SetInput(r io.Reader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input = r
}

func (p *lineProcessor) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

func (p *lineProcessor) Run(ctx context.Context) error {
	p.mu.Lock()
	reader := bufio.NewReader(p.input)
	output := p.output
	p.mu.Unlock()
	p.runs <- struct{}{}

	fmt.Fprint(output, p.greeting)
	for ctx.Err() == nil {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		p.received <- line
		line = strings.TrimRight(line, "\r\n")
		if line == "quit" {
			return nil
		}
		fmt.Fprintf(output, "echo: %s%s", line, LineTerminator)
	}
	return nil
}

func (p *lineProcessor) Stop() {
	p.stopOnce.Do(func() { close(p.stopped) })
}

// stuckProcessor ignores its input and its context and ends only when
// stopped.
type stuckProcessor struct {
	stopOnce sync.Once
	stopped  chan struct{}
	runs     chan struct{}
}

func newStuckProcessor() *stuckProcessor {
	return &stuckProcessor{
		stopped: make(chan struct{}),
		runs:    make(chan struct{}, 16),
	}
}

func (p *stuckProcessor) SetInput(io.Reader)  {}
func (p *stuckProcessor) SetOutput(io.Writer) {}

func (p *stuckProcessor) Run(context.Context) error {
	p.runs <- struct{}{}
	<-p.stopped
	return nil
}

func (p *stuckProcessor) Stop() {
	p.stopOnce.Do(func() { close(p.stopped) })
}

// readUntil reads from conn until the accumulated text contains want.
func readUntil(t *testing.T, conn net.Conn, want string) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(testTimeout)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	var received []byte
	buffer := make([]byte, 256)
	for !strings.Contains(string(received), want) {
		count, err := conn.Read(buffer)
		received = append(received, buffer[:count]...)
		if err != nil {
			t.Fatalf("reading until %q: got %q: %v", want, received, err)
		}
	}
	return string(received)
}
