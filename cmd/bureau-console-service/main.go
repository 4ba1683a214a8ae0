// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-console-service hosts an interactive command interpreter that
// remote clients attach to over unix sockets. Clients negotiate on the
// rendezvous socket in the run directory, receive the name of a
// private session socket, and drive the interpreter through it as if
// it were a local terminal. One client at a time.
//
// An operator control socket (CBOR, one request per connection)
// reports status and can force the active session closed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/console/console"
	"github.com/bureau-foundation/console/interpreter"
	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/config"
	"github.com/bureau-foundation/console/lib/process"
	"github.com/bureau-foundation/console/lib/service"
	"github.com/bureau-foundation/console/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath     string
		runDirectory   string
		rendezvousName string
	)

	flagSet := pflag.NewFlagSet("bureau-console-service", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to console.yaml (default: $BUREAU_CONSOLE_CONFIG, else built-in defaults)")
	flagSet.StringVar(&runDirectory, "run-dir", "", "directory for the rendezvous, session, and control sockets (overrides config)")
	flagSet.StringVar(&rendezvousName, "rendezvous", "", "rendezvous pipe name (overrides config)")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other Bureau binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("bureau-console-service")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if runDirectory != "" {
		cfg.Console.RunDirectory = runDirectory
		cfg.Console.ControlSocket = ""
	}
	if rendezvousName != "" {
		cfg.Console.RendezvousName = rendezvousName
	}
	if cfg.Console.ControlSocket == "" {
		cfg.Console.ControlSocket = "${RUN_DIRECTORY}/control.sock"
	}
	cfg.Expand()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	timeouts, err := cfg.ParseTimeouts()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if err := cfg.EnsureRunDirectory(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	interp := interpreter.New(interpreter.Options{
		Prompt: "console> ",
		Logger: logger.With("component", "interpreter"),
	})
	supervisor, err := console.NewSupervisor(console.SupervisorConfig{
		Endpoint:         console.Endpoint{RunDirectory: cfg.Console.RunDirectory},
		RendezvousName:   cfg.Console.RendezvousName,
		Processor:        interp,
		Logger:           logger.With("component", "supervisor"),
		Clock:            clk,
		ByteTimeout:      timeouts.Byte,
		ConnectTimeout:   timeouts.Connect,
		WatchdogInterval: timeouts.Watchdog,
		RestartDelay:     timeouts.Restart,
		SameUserOnly:     cfg.Console.SameUserOnly,
		ReservedNames:    cfg.ReservedPipeNames(),
	})
	if err != nil {
		return err
	}
	registerCommands(interp, supervisor, clk)

	control := service.NewSocketServer(cfg.Console.ControlSocket, logger.With("component", "control"))
	registerActions(control, supervisor)

	logger.Info("console service starting",
		"version", version.Info(),
		"environment", cfg.Environment,
		"rendezvous", cfg.RendezvousPath(),
		"control_socket", cfg.Console.ControlSocket,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return supervisor.Run(groupCtx) })
	group.Go(func() error { return control.Serve(groupCtx) })
	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("console service stopped")
	return nil
}

// loadConfig reads path if given, else $BUREAU_CONSOLE_CONFIG if set,
// else the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv("BUREAU_CONSOLE_CONFIG") != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Bureau console service: host an interpreter for remote console clients.

Clients connect with "bureau-console attach". Only one client is
attached at a time; others are told "Connection already exists."

Usage:
  bureau-console-service [flags]

Flags:
%s`, flagSet.FlagUsages())
}
