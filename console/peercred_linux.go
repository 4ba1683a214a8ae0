// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials identifies the process on the other end of a unix
// socket, as reported by the kernel at connect time.
type PeerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

func peerCredentials(conn *net.UnixConn) (PeerCredentials, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return PeerCredentials{}, fmt.Errorf("accessing socket descriptor: %w", err)
	}
	var ucred *unix.Ucred
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return PeerCredentials{}, fmt.Errorf("accessing socket descriptor: %w", err)
	}
	if sockErr != nil {
		return PeerCredentials{}, fmt.Errorf("reading SO_PEERCRED: %w", sockErr)
	}
	return PeerCredentials{PID: ucred.Pid, UID: ucred.Uid, GID: ucred.Gid}, nil
}
