// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package interpreter is a line-oriented command processor: a registry
// of named commands, a read-dispatch loop over an io.Reader, and a
// cooperative stop. It satisfies console.Processor, so a console
// session can drive it remotely.
//
// Commands are registered explicitly:
//
//	interp := interpreter.New(interpreter.Options{Prompt: "console> "})
//	interp.Register(interpreter.Command{
//	    Name:    "status",
//	    Summary: "show session status",
//	    Run: func(ctx context.Context, call *interpreter.Call) error {
//	        fmt.Fprintln(call.Out, "ok")
//	        return nil
//	    },
//	})
//
// Names and aliases are case-insensitive. A command error is printed
// and the loop continues; an error wrapping [ErrFatal] ends Run.
package interpreter
