// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-console attaches the terminal to a running
// bureau-console-service. Output from the service's interpreter is
// shown as it arrives; when the interpreter asks for input, one line is
// read from stdin and sent back.
//
// Subcommands:
//
//	attach      negotiate a session and run it (default)
//	status      print the service status from its control socket
//	disconnect  force the active session closed
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/console/console"
	"github.com/bureau-foundation/console/lib/config"
	"github.com/bureau-foundation/console/lib/process"
	"github.com/bureau-foundation/console/lib/service"
	"github.com/bureau-foundation/console/lib/version"
)

func main() {
	process.Exit(run())
}

// options are the parsed command line.
type options struct {
	configPath         string
	runDirectory       string
	rendezvousName     string
	controlSocket      string
	session            string
	jsonOutput         bool
	passThroughEscapes bool
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("bureau-console", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to console.yaml (default: $BUREAU_CONSOLE_CONFIG, else built-in defaults)")
	flagSet.StringVar(&opts.runDirectory, "run-dir", "", "service run directory (overrides config)")
	flagSet.StringVar(&opts.rendezvousName, "rendezvous", "", "rendezvous pipe name (overrides config)")
	flagSet.StringVar(&opts.controlSocket, "control-socket", "", "control socket path (overrides config)")
	flagSet.StringVar(&opts.session, "session", "", "session name to request (default: assigned by the service)")
	flagSet.BoolVar(&opts.jsonOutput, "json", false, "print status as JSON")
	flagSet.BoolVar(&opts.passThroughEscapes, "pass-through-escapes", false, "show in-band control bytes instead of consuming them")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other Bureau binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("bureau-console")
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

	subcommand := "attach"
	args := flagSet.Args()
	if len(args) > 0 {
		subcommand = args[0]
		args = args[1:]
	}
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newCommandLogger().With("command", subcommand)
	switch subcommand {
	case "attach":
		return attach(ctx, cfg, opts, logger)
	case "status":
		return showStatus(ctx, cfg, opts.jsonOutput, os.Stdout)
	case "disconnect":
		return disconnect(ctx, cfg, os.Stdout)
	default:
		return fmt.Errorf("unknown command %q (want attach, status, or disconnect)", subcommand)
	}
}

func resolveConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv("BUREAU_CONSOLE_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if opts.runDirectory != "" {
		cfg.Console.RunDirectory = opts.runDirectory
		cfg.Console.ControlSocket = "${RUN_DIRECTORY}/control.sock"
	}
	if opts.rendezvousName != "" {
		cfg.Console.RendezvousName = opts.rendezvousName
	}
	if opts.controlSocket != "" {
		cfg.Console.ControlSocket = opts.controlSocket
	}
	cfg.Expand()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// attach negotiates a session, connects to it, and runs it until the
// service closes it or the user ends input.
func attach(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) error {
	endpoint := console.Endpoint{RunDirectory: cfg.Console.RunDirectory}
	timeouts, err := cfg.ParseTimeouts()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeouts.Connect)
	defer cancel()
	rendezvous, err := endpoint.Dial(dialCtx, cfg.Console.RendezvousName)
	if err != nil {
		return fmt.Errorf("is bureau-console-service running? %w", err)
	}
	result, err := console.NegotiateWithServer(ctx, rendezvous, opts.session, timeouts.Byte)
	rendezvous.Close()
	if err != nil {
		return fmt.Errorf("negotiating session: %w", err)
	}
	if !result.Success {
		fmt.Fprintln(os.Stderr, styles.failure.Render("Negotiation failure: ")+result.Message)
		return &exitError{code: exitNegotiationRejected, err: fmt.Errorf("session refused: %s", result.Message)}
	}

	session, err := endpoint.Dial(dialCtx, result.Message)
	if err != nil {
		return fmt.Errorf("connecting to session %s: %w", result.Message, err)
	}
	logger.Debug("session connected", "session", result.Message)
	fmt.Fprintln(os.Stderr, styles.notice.Render("connected to session "+result.Message))

	client := console.NewEchoClient(console.EchoClientConfig{
		Transport:          session,
		Input:              console.LineInput(os.Stdin),
		PassThroughEscapes: opts.passThroughEscapes,
		Logger:             logger,
	})
	if err := client.Run(ctx, os.Stdout); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, styles.notice.Render("session closed"))
	return nil
}

func showStatus(ctx context.Context, cfg *config.Config, jsonOutput bool, out io.Writer) error {
	var status console.Status
	client := service.NewServiceClient(cfg.Console.ControlSocket)
	if err := client.Call(ctx, "status", nil, &status); err != nil {
		return err
	}
	return printStatus(out, status, jsonOutput)
}

func disconnect(ctx context.Context, cfg *config.Config, out io.Writer) error {
	var status console.Status
	client := service.NewServiceClient(cfg.Console.ControlSocket)
	if err := client.Call(ctx, "disconnect", nil, &status); err != nil {
		return err
	}
	fmt.Fprintln(out, "session disconnected")
	return nil
}

func printStatus(out io.Writer, status console.Status, jsonOutput bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}
	fmt.Fprintf(out, "%s %s\n", styles.label.Render("state:"), status.State)
	if status.Session != "" {
		fmt.Fprintf(out, "%s %s\n", styles.label.Render("session:"), status.Session)
	}
	if status.ConnectedAt != nil {
		fmt.Fprintf(out, "%s %s\n", styles.label.Render("connected at:"), status.ConnectedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "%s %d\n", styles.label.Render("sessions served:"), status.SessionsServed)
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Bureau console: attach this terminal to a running console service.

Usage:
  bureau-console [flags] [attach|status|disconnect]

Commands:
  attach       negotiate a session and run it (default)
  status       show the service status
  disconnect   force the active session closed

Flags:
%s`, flagSet.FlagUsages())
}
