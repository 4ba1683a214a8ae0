// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"

	"github.com/bureau-foundation/console/lib/netutil"
)

// maxNameLength bounds pipe names. The full socket path must also fit
// in sun_path (108 bytes on Linux), checked separately by Path users.
const maxNameLength = 64

// maxSocketPathLength is the usable length of sockaddr_un.sun_path.
const maxSocketPathLength = 107

// Endpoint maps pipe names to unix sockets inside a run directory.
// The rendezvous socket and every private session socket live side
// by side in the same directory.
type Endpoint struct {
	RunDirectory string
}

// ValidateName checks that name can be used as a pipe name: 1 to 64
// characters from [A-Za-z0-9._-], not starting with a dot.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("pipe name is empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("pipe name is %d bytes, maximum is %d", len(name), maxNameLength)
	}
	if name[0] == '.' {
		return fmt.Errorf("pipe name %q starts with a dot", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("pipe name %q contains %q", name, r)
		}
	}
	return nil
}

// Path returns the socket path for name.
func (e Endpoint) Path(name string) string {
	return filepath.Join(e.RunDirectory, name+".sock")
}

func (e Endpoint) checkedPath(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	path := e.Path(name)
	if len(path) > maxSocketPathLength {
		return "", fmt.Errorf("socket path %s is %d bytes, maximum is %d", path, len(path), maxSocketPathLength)
	}
	return path, nil
}

// Listen opens a listener for name, removing a stale socket file left
// by a previous process. A socket some other listener still answers on
// is never replaced: Listen fails with an error wrapping
// netutil.ErrSocketInUse. The socket file is unlinked when the
// listener closes.
func (e Endpoint) Listen(name string) (*net.UnixListener, error) {
	path, err := e.checkedPath(name)
	if err != nil {
		return nil, err
	}
	if err := netutil.RemoveStaleSocket(path); err != nil {
		return nil, err
	}
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	listener.SetUnlinkOnClose(true)
	return listener, nil
}

// Dial connects to the socket for name.
func (e Endpoint) Dial(ctx context.Context, name string) (*net.UnixConn, error) {
	path, err := e.checkedPath(name)
	if err != nil {
		return nil, err
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	return conn.(*net.UnixConn), nil
}
