// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/bureau-foundation/console/console"
	"github.com/bureau-foundation/console/lib/service"
)

// sessionControl is what the control socket acts on.
type sessionControl interface {
	Status() console.Status
	Disconnect() error
}

// registerActions wires the operator control actions.
func registerActions(server *service.SocketServer, supervisor sessionControl) {
	server.Handle("status", func(context.Context, []byte) (any, error) {
		return supervisor.Status(), nil
	})
	server.Handle("disconnect", func(context.Context, []byte) (any, error) {
		if err := supervisor.Disconnect(); err != nil {
			return nil, err
		}
		return supervisor.Status(), nil
	})
}
