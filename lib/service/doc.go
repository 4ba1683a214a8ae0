// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the console service's operator control
// socket: a CBOR request-response protocol on a unix socket.
//
// Each connection carries exactly one exchange. The client writes one
// CBOR map containing an "action" field plus action-specific fields;
// the server dispatches to the handler registered for that action and
// writes one [Response] envelope: {ok, error?, data?}. The connection
// then closes.
//
// The control socket is deliberately separate from the console
// rendezvous endpoint. The rendezvous endpoint speaks the raw framed
// negotiation protocol and admits one interactive session at a time;
// the control socket answers operational questions ("is a session
// open?") and performs operational actions ("end it") without
// occupying the session slot.
//
// Access control is the socket file's permissions: the socket is
// created with mode 0600 inside the run directory.
package service
