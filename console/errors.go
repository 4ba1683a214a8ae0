// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"errors"
	"fmt"
)

// ErrByteTimeout is the cause recorded when a negotiation peer sends
// nothing within the per-byte deadline.
var ErrByteTimeout = errors.New("no byte within deadline")

// NegotiationError reports a failed handshake exchange: the peer sent
// an incomplete or malformed frame, or went silent. It is distinct from
// a transport failure. The negotiator logs it and moves on to the next
// client; it is never fatal to the listener.
type NegotiationError struct {
	// Stage is "request" on the service side and "result" on the
	// client side.
	Stage string

	// State is where the collector stopped.
	State CollectorState

	Err error
}

func (e *NegotiationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("negotiation %s incomplete: collector %s", e.Stage, e.State)
	}
	return fmt.Sprintf("negotiation %s incomplete: collector %s: %v", e.Stage, e.State, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// Occupancy and lifecycle errors.
var (
	// ErrAlreadyRunning is returned by a second Supervisor.Run.
	ErrAlreadyRunning = errors.New("supervisor already running")

	// ErrNotRunning is reported when the supervisor is asked to open a
	// session before Run has started it.
	ErrNotRunning = errors.New("supervisor not running")

	// ErrNoSession is returned by Disconnect when nothing is open.
	ErrNoSession = errors.New("no active session")
)

// ConnectionExistsMessage is the rejection sent to a client that
// negotiates while another session holds occupancy.
const ConnectionExistsMessage = "Connection already exists."
