// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bureau-foundation/console/console"
	"github.com/bureau-foundation/console/interpreter"
	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/version"
)

// statusSource is the part of the supervisor the commands read.
type statusSource interface {
	Status() console.Status
}

// registerCommands adds the service's own commands to the built-in
// help and stop.
func registerCommands(interp *interpreter.Interpreter, supervisor statusSource, clk clock.Clock) {
	startedAt := clk.Now()

	interp.Register(interpreter.Command{
		Name:    "status",
		Summary: "show the session and service status",
		Run: func(_ context.Context, call *interpreter.Call) error {
			status := supervisor.Status()
			fmt.Fprintf(call.Out, "state:           %s\n", status.State)
			if status.Session != "" {
				fmt.Fprintf(call.Out, "session:         %s\n", status.Session)
			}
			if status.ConnectedAt != nil {
				fmt.Fprintf(call.Out, "connected for:   %s\n", clk.Now().Sub(*status.ConnectedAt).Truncate(time.Second))
			}
			fmt.Fprintf(call.Out, "sessions served: %d\n", status.SessionsServed)
			fmt.Fprintf(call.Out, "uptime:          %s\n", clk.Now().Sub(startedAt).Truncate(time.Second))
			return nil
		},
	})

	interp.Register(interpreter.Command{
		Name:    "echo",
		Summary: "print the arguments back",
		Usage:   "echo [words...]",
		Run: func(_ context.Context, call *interpreter.Call) error {
			fmt.Fprintln(call.Out, strings.Join(call.Args, " "))
			return nil
		},
	})

	interp.Register(interpreter.Command{
		Name:    "version",
		Summary: "show the service version",
		Run: func(_ context.Context, call *interpreter.Call) error {
			fmt.Fprintln(call.Out, version.Full())
			return nil
		},
	})
}
