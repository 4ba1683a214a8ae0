// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with status 1. Use it in
// main() for errors returned by run(), where the structured logger may
// not exist yet.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// ExitCoder is implemented by errors that carry a specific exit status.
type ExitCoder interface {
	ExitCode() int
}

// Exit reports err and exits with its status: the ExitCode of an
// ExitCoder, otherwise 1. A nil err returns without exiting.
func Exit(err error) {
	if err == nil {
		return
	}
	if coder, ok := err.(ExitCoder); ok {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(coder.ExitCode())
	}
	Fatal(err)
}
