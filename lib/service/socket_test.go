// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/console/lib/codec"
	"github.com/bureau-foundation/console/lib/netutil"
	"github.com/bureau-foundation/console/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// startServer runs server in the background and waits until its socket
// accepts connections. The server stops when the test ends.
func startServer(t *testing.T, server *SocketServer, socketPath string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "control socket shutdown")
	})
	testutil.Eventually(t, 5*time.Second, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, "socket %s to appear", socketPath)
}

func TestCallReturnsHandlerData(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")

	server := NewSocketServer(socketPath, testLogger())
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Verbose bool `cbor:"verbose"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return map[string]any{"state": "idle", "verbose": request.Verbose}, nil
	})
	startServer(t, server, socketPath)

	var result struct {
		State   string `cbor:"state"`
		Verbose bool   `cbor:"verbose"`
	}
	client := NewServiceClient(socketPath)
	if err := client.Call(context.Background(), "status", map[string]any{"verbose": true}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.State != "idle" || !result.Verbose {
		t.Errorf("result = %+v, want state idle verbose true", result)
	}
}

func TestCallSurfacesHandlerError(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")

	server := NewSocketServer(socketPath, testLogger())
	server.Handle("disconnect", func(context.Context, []byte) (any, error) {
		return nil, errors.New("no active session")
	})
	startServer(t, server, socketPath)

	err := NewServiceClient(socketPath).Call(context.Background(), "disconnect", nil, nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("Call error = %v, want *ServiceError", err)
	}
	if serviceErr.Message != "no active session" {
		t.Errorf("message = %q, want %q", serviceErr.Message, "no active session")
	}
}

func TestUnknownActionIsRejected(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	startServer(t, NewSocketServer(socketPath, testLogger()), socketPath)

	err := NewServiceClient(socketPath).Call(context.Background(), "reboot", nil, nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("Call error = %v, want *ServiceError", err)
	}
	if serviceErr.Message != `unknown action "reboot"` {
		t.Errorf("message = %q", serviceErr.Message)
	}
}

func TestSocketIsOwnerOnly(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	startServer(t, NewSocketServer(socketPath, testLogger()), socketPath)

	testutil.Eventually(t, 5*time.Second, func() bool {
		info, err := os.Stat(socketPath)
		return err == nil && info.Mode().Perm() == 0o600
	}, "socket mode 0600")
}

func TestDuplicateHandlerPanics(t *testing.T) {
	t.Parallel()
	server := NewSocketServer("/unused", testLogger())
	server.Handle("status", func(context.Context, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate Handle did not panic")
		}
	}()
	server.Handle("status", func(context.Context, []byte) (any, error) { return nil, nil })
}

func TestServeRefusesLiveSocket(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")

	first := NewSocketServer(socketPath, testLogger())
	first.Handle("status", func(context.Context, []byte) (any, error) {
		return map[string]string{"state": "idle"}, nil
	})
	startServer(t, first, socketPath)

	second := NewSocketServer(socketPath, testLogger())
	if err := second.Serve(context.Background()); !errors.Is(err, netutil.ErrSocketInUse) {
		t.Fatalf("second Serve = %v, want ErrSocketInUse", err)
	}

	var result struct {
		State string `cbor:"state"`
	}
	if err := NewServiceClient(socketPath).Call(context.Background(), "status", nil, &result); err != nil {
		t.Fatalf("Call to first server: %v", err)
	}
	if result.State != "idle" {
		t.Errorf("state = %q, want idle", result.State)
	}
}
