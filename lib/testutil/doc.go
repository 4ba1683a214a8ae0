// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds shared helpers for the console test suites.
//
// [SocketDir] returns a short directory under /tmp for unix sockets.
// sun_path is limited to 108 bytes and t.TempDir() paths frequently
// exceed it.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests never hang forever on a channel. They are the only
// place tests consult the wall clock for safety timeouts.
//
// [UniqueID] hands out monotonically increasing names so parallel
// tests never collide on session labels or socket names.
//
// Helpers call t.Fatalf on failure; setup failures are not recoverable.
package testutil
