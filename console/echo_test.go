// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/console/lib/testutil"
)

// lineFeed is an InputSource fed from a channel, counting calls.
type lineFeed struct {
	lines chan string
	calls atomic.Int32
}

func newLineFeed() *lineFeed {
	return &lineFeed{lines: make(chan string, 8)}
}

func (f *lineFeed) source(ctx context.Context) (string, error) {
	f.calls.Add(1)
	select {
	case line, ok := <-f.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func receiveAll(t *testing.T, client *EchoClient) string {
	t.Helper()
	received, err := drain(client)
	if err != nil {
		t.Fatalf("ReceiveNext: %v", err)
	}
	return received
}

// drain calls ReceiveNext until EOF.
func drain(client *EchoClient) (string, error) {
	var received []byte
	for {
		b, err := client.ReceiveNext()
		if errors.Is(err, io.EOF) {
			return string(received), nil
		}
		if err != nil {
			return string(received), err
		}
		received = append(received, b)
	}
}

type drainResult struct {
	received string
	err      error
}

// drainInBackground runs drain on its own goroutine. Read requests are
// only acted on while something is consuming the stream, so tests that
// wait for the client's reply must start this first.
func drainInBackground(client *EchoClient) <-chan drainResult {
	results := make(chan drainResult, 1)
	go func() {
		received, err := drain(client)
		results <- drainResult{received: received, err: err}
	}()
	return results
}

// awaitDrained collects the result of drainInBackground.
func awaitDrained(t *testing.T, results <-chan drainResult) string {
	t.Helper()
	result := testutil.RequireReceive(t, results, testTimeout, "client stream drained")
	if result.err != nil {
		t.Fatalf("ReceiveNext: %v", result.err)
	}
	return result.received
}

func TestEchoClientSuppressesReadRequest(t *testing.T) {
	t.Parallel()

	server, clientConn := socketPair(t)
	feed := newLineFeed()
	feed.lines <- "status"
	client := NewEchoClient(EchoClientConfig{
		Transport:  clientConn,
		Input:      feed.source,
		Terminator: "\n",
	})
	defer client.Close()

	received := drainInBackground(client)
	stream := "ready\n" + string(ReadRequest.Sequence()) + "\x1b[1mbold\x1b[0m"
	if _, err := server.Write([]byte(stream)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got := readUntil(t, server, "\n"); got != "status\n" {
		t.Errorf("client sent %q, want %q", got, "status\n")
	}
	server.CloseWrite()

	if got, want := awaitDrained(t, received), "ready\n\x1b[1mbold\x1b[0m"; got != want {
		t.Errorf("delivered %q, want %q", got, want)
	}
}

func TestEchoClientPassThroughEscapes(t *testing.T) {
	t.Parallel()

	server, clientConn := socketPair(t)
	feed := newLineFeed()
	feed.lines <- "go"
	client := NewEchoClient(EchoClientConfig{
		Transport:          clientConn,
		Input:              feed.source,
		Terminator:         "\r\n",
		PassThroughEscapes: true,
	})
	defer client.Close()

	received := drainInBackground(client)
	stream := "a" + string(ReadRequest.Sequence()) + "\x1b[m"
	if _, err := server.Write([]byte(stream)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := readUntil(t, server, "\r\n"); got != "go\r\n" {
		t.Errorf("client sent %q, want %q", got, "go\r\n")
	}
	server.CloseWrite()

	if got := awaitDrained(t, received); got != stream {
		t.Errorf("delivered %q, want every byte %q", got, stream)
	}
}

func TestEchoClientCoalescesRequests(t *testing.T) {
	t.Parallel()

	server, clientConn := socketPair(t)
	feed := newLineFeed()
	client := NewEchoClient(EchoClientConfig{
		Transport:  clientConn,
		Input:      feed.source,
		Terminator: "\n",
	})
	defer client.Close()

	request := string(ReadRequest.Sequence())
	server.Write([]byte(request + request + request + "x"))
	if b, err := client.ReceiveNext(); err != nil || b != 'x' {
		t.Fatalf("ReceiveNext = %q, %v; want 'x'", b, err)
	}

	testutil.Eventually(t, testTimeout, func() bool { return feed.calls.Load() == 1 }, "input requested")
	// Requests that arrive while the user is still typing are dropped.
	time.Sleep(20 * time.Millisecond)
	if calls := feed.calls.Load(); calls != 1 {
		t.Fatalf("input source called %d times, want 1", calls)
	}

	feed.lines <- "one"
	if got := readUntil(t, server, "\n"); got != "one\n" {
		t.Errorf("client sent %q, want one line", got)
	}

	// Once answered, the next request is served again.
	server.Write([]byte(request + "y"))
	client.ReceiveNext()
	feed.lines <- "two"
	if got := readUntil(t, server, "\n"); got != "two\n" {
		t.Errorf("client sent %q, want second line", got)
	}
}

func TestEchoClientInputEOFClosesWriteSide(t *testing.T) {
	t.Parallel()

	server, clientConn := socketPair(t)
	feed := newLineFeed()
	close(feed.lines)
	client := NewEchoClient(EchoClientConfig{Transport: clientConn, Input: feed.source})
	defer client.Close()

	server.Write(ReadRequest.Sequence())
	server.CloseWrite()
	receiveAll(t, client)

	server.SetReadDeadline(time.Now().Add(testTimeout))
	buffer := make([]byte, 1)
	if _, err := server.Read(buffer); !errors.Is(err, io.EOF) {
		t.Errorf("server read after input EOF = %v, want io.EOF", err)
	}
}

func TestEchoClientRun(t *testing.T) {
	t.Parallel()

	server, clientConn := socketPair(t)
	feed := newLineFeed()
	client := NewEchoClient(EchoClientConfig{Transport: clientConn, Input: feed.source})

	display := &lockedBuffer{}
	done := make(chan error, 1)
	go func() { done <- client.Run(context.Background(), display) }()

	server.Write([]byte("hello" + string(ReadRequest.Sequence())))
	feed.lines <- "hi"
	readUntil(t, server, "hi"+LineTerminator)
	server.Write([]byte(" world"))
	server.Close()

	if err := testutil.RequireReceive(t, done, testTimeout, "Run exit"); err != nil {
		t.Errorf("Run = %v, want nil when the service closes", err)
	}
	if got := display.String(); got != "hello world" {
		t.Errorf("display = %q, want %q", got, "hello world")
	}
}

func TestLineInput(t *testing.T) {
	t.Parallel()

	source := LineInput(strings.NewReader("first\r\nsecond\nlast"))
	for _, want := range []string{"first", "second", "last"} {
		line, err := source(context.Background())
		if err != nil {
			t.Fatalf("source: %v", err)
		}
		if line != want {
			t.Errorf("line = %q, want %q", line, want)
		}
	}
	if _, err := source(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("after last line = %v, want io.EOF", err)
	}
}
