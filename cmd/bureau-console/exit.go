// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

// exitNegotiationRejected is the exit status when the service refuses
// the session, for example because another client holds it.
const exitNegotiationRejected = 2

// exitError carries an exit status to process.Exit.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }
