// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/bureau-foundation/console/lib/testutil"
)

// startPump runs Pump on a reader fed from one end of net.Pipe and
// returns the other end for the test to write client bytes into.
func startPump(t *testing.T, terminator string) (*SessionReader, net.Conn, *lockedBuffer, <-chan error) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		serverSide.Close()
		clientSide.Close()
	})
	output := &lockedBuffer{}
	reader := NewSessionReader(serverSide, output, terminator)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- reader.Pump(ctx) }()
	return reader, clientSide, output, done
}

func TestSessionReaderDeliversBytesInOrder(t *testing.T) {
	t.Parallel()

	reader, client, _, _ := startPump(t, "\n")
	if _, err := client.Write([]byte("status\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got []byte
	for len(got) < len("status\n") {
		b, err := reader.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte: %v", err)
		}
		got = append(got, b)
	}
	if string(got) != "status\n" {
		t.Errorf("read %q, want %q", got, "status\n")
	}
}

func TestSessionReaderRequestsInputOncePerEmptyQueue(t *testing.T) {
	t.Parallel()

	reader, client, output, _ := startPump(t, "\n")

	type readResult struct {
		b   byte
		err error
	}
	results := make(chan readResult, 1)
	go func() {
		b, err := reader.ReadByte()
		results <- readResult{b, err}
	}()

	// The escape goes out before the reader waits, and only once no
	// matter how long it waits.
	testutil.Eventually(t, testTimeout, func() bool {
		return output.String() == string(ReadRequest.Sequence())
	}, "read request emitted")
	if reader.ReadRequests() != 1 {
		t.Fatalf("ReadRequests() = %d, want 1", reader.ReadRequests())
	}

	if _, err := client.Write([]byte("a")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	result := testutil.RequireReceive(t, results, testTimeout, "blocked ReadByte")
	if result.err != nil || result.b != 'a' {
		t.Fatalf("ReadByte = %q, %v; want 'a'", result.b, result.err)
	}
	if output.String() != string(ReadRequest.Sequence()) {
		t.Errorf("output = %q, want exactly one read request", output.String())
	}

	// The next empty queue is a new event and gets its own request.
	go func() {
		b, err := reader.ReadByte()
		results <- readResult{b, err}
	}()
	testutil.Eventually(t, testTimeout, func() bool {
		return reader.ReadRequests() == 2
	}, "second read request")
	client.Write([]byte("b"))
	testutil.RequireReceive(t, results, testTimeout, "second ReadByte")
}

func TestSessionReaderNoRequestWhenQueued(t *testing.T) {
	t.Parallel()

	reader, client, output, _ := startPump(t, "\n")
	client.Write([]byte("xy"))
	testutil.Eventually(t, testTimeout, func() bool {
		b, ok := reader.PeekByte()
		return ok && b == 'x'
	}, "bytes queued")

	buffer := make([]byte, 8)
	testutil.Eventually(t, testTimeout, func() bool {
		_, ok := reader.PeekByte()
		if !ok {
			return true
		}
		reader.Read(buffer)
		return false
	}, "queue drained")
	if output.String() != "" {
		t.Errorf("read request emitted with bytes queued: %q", output.String())
	}
}

func TestSessionReaderTerminatorAtomicity(t *testing.T) {
	t.Parallel()

	reader, client, _, _ := startPump(t, "\r\n")

	if _, err := client.Write([]byte("\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// net.Pipe hands the byte straight to the pump; the first half of
	// the terminator must not become visible on its own.
	if b, ok := reader.PeekByte(); ok {
		t.Fatalf("queue holds %q with only half the terminator sent", b)
	}

	if _, err := client.Write([]byte("\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	testutil.Eventually(t, testTimeout, func() bool {
		_, ok := reader.PeekByte()
		return ok
	}, "terminator queued")

	buffer := make([]byte, 4)
	count, err := reader.Read(buffer)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buffer[:count]) != "\r\n" {
		t.Errorf("Read = %q, want both terminator bytes together", buffer[:count])
	}
}

func TestSessionReaderLoneCarriageReturn(t *testing.T) {
	t.Parallel()

	reader, client, _, _ := startPump(t, "\r\n")
	client.Write([]byte("\rx"))

	var got []byte
	for len(got) < 2 {
		b, err := reader.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte: %v", err)
		}
		got = append(got, b)
	}
	if string(got) != "\rx" {
		t.Errorf("read %q, want %q", got, "\rx")
	}
}

func TestSessionReaderDisconnect(t *testing.T) {
	t.Parallel()

	reader, client, _, done := startPump(t, "\n")
	client.Write([]byte("tail"))
	client.Close()

	if err := testutil.RequireReceive(t, done, testTimeout, "pump exit"); err != nil {
		t.Errorf("Pump after peer close = %v, want nil", err)
	}
	if reader.Connected() {
		t.Error("Connected() true after peer close")
	}

	// Queued bytes survive the disconnect, then EOF.
	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "tail" {
		t.Errorf("drained %q, want tail", got)
	}
}

func TestSessionReaderCancellation(t *testing.T) {
	t.Parallel()

	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()
	reader := NewSessionReader(serverSide, io.Discard, "\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reader.Pump(ctx) }()

	readDone := make(chan error, 1)
	go func() {
		_, err := reader.ReadByte()
		readDone <- err
	}()

	cancel()
	if err := testutil.RequireReceive(t, done, testTimeout, "pump exit"); err != nil {
		t.Errorf("Pump after cancel = %v, want nil", err)
	}
	if err := testutil.RequireReceive(t, readDone, testTimeout, "blocked reader"); !errors.Is(err, io.EOF) {
		t.Errorf("ReadByte after cancel = %v, want io.EOF", err)
	}
	if !reader.Connected() {
		t.Error("cancellation reported as a disconnect")
	}
}

func TestSessionReaderRequestWriteFailure(t *testing.T) {
	t.Parallel()

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()
	serverSide.Close()

	reader := NewSessionReader(bytes.NewReader(nil), serverSide, "\n")
	if _, err := reader.ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadByte with closed output = %v, want io.EOF", err)
	}
	if reader.Connected() {
		t.Error("Connected() true after the request could not be sent")
	}
}
