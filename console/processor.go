// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"io"
	"strings"
)

// Processor is the interactive command processor a session drives.
// The supervisor binds input and output before each session and
// rebinds them to a closed reader and io.Discard afterwards. Sessions
// are sequential, so one Processor serves all of them.
type Processor interface {
	SetInput(io.Reader)
	SetOutput(io.Writer)

	// Run reads and executes commands until input ends, Stop is
	// called, or ctx is cancelled.
	Run(ctx context.Context) error

	// Stop asks a running Run to return.
	Stop()
}

// detach rebinds p to inert input and output between sessions.
func detach(p Processor) {
	p.SetInput(strings.NewReader(""))
	p.SetOutput(io.Discard)
}
