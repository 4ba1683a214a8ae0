// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package console implements the remote console: a client attaches to a
// locally running interactive command processor over a unix socket as
// if it had a local terminal, and a control signal travels in-band
// through the same byte stream as the terminal text.
//
// The package is organized around the connection's life:
//
//   - protocol.go: the length-prefixed frame codec, the negotiation
//     result encoding, and the in-session escape bytes
//   - collector.go: the byte-at-a-time frame collector used on both
//     sides of the handshake
//   - endpoint.go: pipe names and their sockets in the run directory
//   - negotiator.go: the rendezvous handshake ([Negotiator] on the
//     service side, [NegotiateWithServer] on the client side)
//   - channel.go: [SessionReader], the pump and blocking reader that
//     feed a synchronous processor from an asynchronous transport
//   - echo.go: [EchoClient], the remote peer's byte loop
//   - supervisor.go: [Supervisor], single occupancy, the session
//     watchdog, and the negotiator restart loop
//
// # Negotiation
//
// A client connects to the well-known rendezvous socket and sends one
// frame: [4-byte big-endian length][UTF-8 label]. The service answers
// with one frame, [length][status byte][UTF-8 message], and closes the
// connection. Status 1 means the message names the private session
// pipe to connect to; status 0 means the message is the reason for
// rejection. Every byte of the handshake is read under a 500ms
// deadline so a silent or slow client cannot wedge the rendezvous
// endpoint.
//
// # Session stream
//
// On the private pipe, bytes from the service are terminal output and
// bytes from the client are terminal input, with one exception: the
// service sends ESC (0x1B) followed by [ReadRequest] (0x30) when the
// processor wants a line and none is buffered. The client answers by
// sending a line terminated by the platform line terminator.
//
// At most one session exists at a time. A second client is rejected
// with "Connection already exists." until the first disconnects.
package console
