// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package console

import (
	"errors"
	"net"
)

// PeerCredentials identifies the process on the other end of a unix
// socket. Only Linux reports them.
type PeerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

func peerCredentials(*net.UnixConn) (PeerCredentials, error) {
	return PeerCredentials{}, errors.ErrUnsupported
}
