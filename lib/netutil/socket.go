// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"
	"time"
)

// ErrSocketInUse is returned by RemoveStaleSocket when a live listener
// still answers on the path.
var ErrSocketInUse = errors.New("socket is in use")

// livenessTimeout bounds the liveness dial.
const livenessTimeout = 100 * time.Millisecond

// RemoveStaleSocket removes a unix socket file at path left behind by
// a process that is no longer listening. A path that nothing answers
// on (ECONNREFUSED, which Linux also reports for non-socket files) is
// removed and a missing path is fine. A live listener is left alone and
// reported as ErrSocketInUse. Any other dial error, such as EAGAIN from a
// full backlog, leaves the file in place and is returned.
func RemoveStaleSocket(path string) error {
	conn, err := net.DialTimeout("unix", path, livenessTimeout)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%s: %w", path, ErrSocketInUse)
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case errors.Is(err, syscall.ECONNREFUSED):
	default:
		return fmt.Errorf("checking socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	return nil
}
