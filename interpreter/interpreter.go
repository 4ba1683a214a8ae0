// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package interpreter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
)

// ErrFatal marks a command error that ends the interpreter loop.
var ErrFatal = errors.New("fatal")

// Command is one named operation.
type Command struct {
	// Name is what the user types. Required.
	Name string

	// Aliases are alternative names.
	Aliases []string

	// Summary is shown by help.
	Summary string

	// Usage, if set, is shown by "help <command>".
	Usage string

	Run func(ctx context.Context, call *Call) error
}

// Call is the invocation passed to a command.
type Call struct {
	// Name is the name the user typed, lower-cased.
	Name string

	// Args are the whitespace-separated words after the name.
	Args []string

	// Out is the interpreter's current output.
	Out io.Writer

	Interpreter *Interpreter
}

// Options configures an Interpreter.
type Options struct {
	// Prompt is written before each line is read. Empty means "> ".
	Prompt string

	Logger *slog.Logger
}

// Interpreter reads lines, dispatches them to registered commands, and
// writes results to its output.
type Interpreter struct {
	prompt string
	logger *slog.Logger

	mu       sync.Mutex
	commands map[string]*Command
	ordered  []*Command
	input    *bufio.Reader
	output   io.Writer
	stopped  bool
	cancel   context.CancelFunc
}

// New returns an interpreter with the built-in help, stop, and exit
// commands registered, reading nothing and writing nowhere until
// SetInput and SetOutput are called.
func New(options Options) *Interpreter {
	prompt := options.Prompt
	if prompt == "" {
		prompt = "> "
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interp := &Interpreter{
		prompt:   prompt,
		logger:   logger,
		commands: make(map[string]*Command),
		input:    bufio.NewReader(strings.NewReader("")),
		output:   io.Discard,
	}
	interp.Register(Command{
		Name:    "help",
		Aliases: []string{"?"},
		Summary: "list commands, or describe one",
		Usage:   "help [command]",
		Run:     runHelp,
	})
	interp.Register(Command{
		Name:    "stop",
		Aliases: []string{"exit", "quit"},
		Summary: "end this session",
		Run: func(_ context.Context, call *Call) error {
			call.Interpreter.Stop()
			return nil
		},
	})
	return interp
}

// Register adds command. It panics on an empty name, a nil Run, or a
// name or alias that is already taken, all of which are programming
// errors.
func (i *Interpreter) Register(command Command) {
	if command.Name == "" {
		panic("interpreter: command name is empty")
	}
	if command.Run == nil {
		panic(fmt.Sprintf("interpreter: command %q has no Run", command.Name))
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	registered := &command
	names := append([]string{command.Name}, command.Aliases...)
	for _, name := range names {
		if _, exists := i.commands[strings.ToLower(name)]; exists {
			panic(fmt.Sprintf("interpreter: duplicate command name %q", name))
		}
	}
	for _, name := range names {
		i.commands[strings.ToLower(name)] = registered
	}
	i.ordered = append(i.ordered, registered)
}

// Lookup finds a command by name or alias, ignoring case.
func (i *Interpreter) Lookup(name string) (Command, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	command, ok := i.commands[strings.ToLower(name)]
	if !ok {
		return Command{}, false
	}
	return *command, true
}

// Commands returns every registered command sorted by name.
func (i *Interpreter) Commands() []Command {
	i.mu.Lock()
	defer i.mu.Unlock()
	commands := make([]Command, 0, len(i.ordered))
	for _, command := range i.ordered {
		commands = append(commands, *command)
	}
	slices.SortFunc(commands, func(a, b Command) int { return strings.Compare(a.Name, b.Name) })
	return commands
}

// SetInput replaces the line source.
func (i *Interpreter) SetInput(r io.Reader) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.input = bufio.NewReader(r)
}

// SetOutput replaces where prompts and results go.
func (i *Interpreter) SetOutput(w io.Writer) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.output = w
}

// Stop asks Run to return after the current command. A Run blocked
// reading input returns when its reader ends.
func (i *Interpreter) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stopped = true
	if i.cancel != nil {
		i.cancel()
	}
}

func (i *Interpreter) isStopped() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stopped
}

// Run reads and executes lines until input ends, Stop is called, ctx
// is cancelled, or a command fails with ErrFatal.
func (i *Interpreter) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	i.mu.Lock()
	i.stopped = false
	i.cancel = cancel
	input := i.input
	output := i.output
	i.mu.Unlock()

	for ctx.Err() == nil && !i.isStopped() {
		fmt.Fprint(output, i.prompt)
		line, err := input.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}
		if err := i.execute(ctx, line, output); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs one line against output. It returns an error only for
// ErrFatal; other command errors are written to output.
func (i *Interpreter) Execute(ctx context.Context, line string, output io.Writer) error {
	return i.execute(ctx, line, output)
}

func (i *Interpreter) execute(ctx context.Context, line string, output io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	command, ok := i.Lookup(name)
	if !ok {
		if suggestion := i.suggest(name); suggestion != "" {
			fmt.Fprintf(output, "unknown command %q (did you mean %q?)\n", fields[0], suggestion)
		} else {
			fmt.Fprintf(output, "unknown command %q, type \"help\" for a list\n", fields[0])
		}
		return nil
	}

	call := &Call{Name: name, Args: fields[1:], Out: output, Interpreter: i}
	err := command.Run(ctx, call)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFatal):
		fmt.Fprintf(output, "fatal: %v\n", err)
		i.logger.Error("command failed fatally", "command", command.Name, "error", err)
		return fmt.Errorf("command %s: %w", command.Name, err)
	default:
		fmt.Fprintf(output, "error: %v\n", err)
		i.logger.Debug("command failed", "command", command.Name, "error", err)
		return nil
	}
}

func runHelp(_ context.Context, call *Call) error {
	if len(call.Args) > 0 {
		command, ok := call.Interpreter.Lookup(call.Args[0])
		if !ok {
			return fmt.Errorf("no command named %q", call.Args[0])
		}
		fmt.Fprintf(call.Out, "%s: %s\n", command.Name, command.Summary)
		if command.Usage != "" {
			fmt.Fprintf(call.Out, "usage: %s\n", command.Usage)
		}
		if len(command.Aliases) > 0 {
			fmt.Fprintf(call.Out, "aliases: %s\n", strings.Join(command.Aliases, ", "))
		}
		return nil
	}

	writer := tabwriter.NewWriter(call.Out, 2, 0, 3, ' ', 0)
	for _, command := range call.Interpreter.Commands() {
		fmt.Fprintf(writer, "  %s\t%s\n", command.Name, command.Summary)
	}
	return writer.Flush()
}
