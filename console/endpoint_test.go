// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/console/lib/netutil"
	"github.com/bureau-foundation/console/lib/testutil"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"console", false},
		{"RemotePanelControllerCLI", false},
		{"console-1b4e28ba-2fa1-11d2-883f-0016d3cca427", false},
		{"a.b_c-d", false},
		{"", true},
		{".hidden", true},
		{"with/slash", true},
		{"with space", true},
		{"../escape", true},
		{strings.Repeat("x", 65), true},
	}
	for _, test := range tests {
		err := ValidateName(test.name)
		if (err != nil) != test.wantErr {
			t.Errorf("ValidateName(%q) = %v, wantErr %v", test.name, err, test.wantErr)
		}
	}
}

func TestEndpointPath(t *testing.T) {
	t.Parallel()

	endpoint := Endpoint{RunDirectory: "/run/console"}
	if got := endpoint.Path("console"); got != "/run/console/console.sock" {
		t.Errorf("Path = %q", got)
	}
}

func TestEndpointListenReplacesStaleSocket(t *testing.T) {
	t.Parallel()

	directory := testutil.SocketDir(t)
	endpoint := Endpoint{RunDirectory: directory}
	stale := filepath.Join(directory, "console.sock")
	if err := os.WriteFile(stale, nil, 0o600); err != nil {
		t.Fatalf("writing stale socket: %v", err)
	}

	listener, err := endpoint.Listen("console")
	if err != nil {
		t.Fatalf("Listen over stale file: %v", err)
	}

	accepted := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			conn.Close()
		}
		accepted <- err
	}()
	conn, err := endpoint.Dial(context.Background(), "console")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.Close()
	if err := testutil.RequireReceive(t, accepted, testTimeout, "accept"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	listener.Close()
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("socket file remains after listener close: %v", err)
	}
}

func TestEndpointListenRefusesLiveSocket(t *testing.T) {
	t.Parallel()

	directory := testutil.SocketDir(t)
	endpoint := Endpoint{RunDirectory: directory}
	path := filepath.Join(directory, "control.sock")
	owner, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer owner.Close()

	if _, err := endpoint.Listen("control"); !errors.Is(err, netutil.ErrSocketInUse) {
		t.Fatalf("Listen over a live socket = %v, want ErrSocketInUse", err)
	}

	accepted := make(chan error, 1)
	go func() {
		conn, err := owner.Accept()
		if err == nil {
			conn.Close()
		}
		accepted <- err
	}()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dialing original owner: %v", err)
	}
	conn.Close()
	if err := testutil.RequireReceive(t, accepted, testTimeout, "original owner accept"); err != nil {
		t.Fatalf("original owner Accept: %v", err)
	}
}

func TestEndpointRejectsInvalidNames(t *testing.T) {
	t.Parallel()

	endpoint := Endpoint{RunDirectory: testutil.SocketDir(t)}
	if _, err := endpoint.Listen("../outside"); err == nil {
		t.Error("Listen accepted a path-traversal name")
	}
	if _, err := endpoint.Dial(context.Background(), ""); err == nil {
		t.Error("Dial accepted an empty name")
	}

	long := Endpoint{RunDirectory: "/" + strings.Repeat("d", 100)}
	if _, err := long.Listen("console"); err == nil || !strings.Contains(err.Error(), "maximum") {
		t.Errorf("Listen with overlong path = %v, want length error", err)
	}
}
