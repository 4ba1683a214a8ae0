// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source for the console service.
//
// Code that waits on time (the session watchdog, the negotiator restart
// backoff) holds a Clock instead of calling the time package directly.
// Production wiring passes Real(). Tests pass Fake() and move time
// forward explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	supervisor, _ := console.NewSupervisor(console.SupervisorConfig{Clock: fake, ...})
//	fake.WaitForTimers(1)               // watchdog ticker registered
//	fake.Advance(250 * time.Millisecond) // watchdog polls once
//
// WaitForTimers closes the race between a goroutine registering its
// ticker and the test advancing the clock.
//
// Per-byte socket deadlines are not routed through Clock: they are
// enforced by the kernel via net.Conn deadlines, which only understand
// wall-clock time.
package clock
