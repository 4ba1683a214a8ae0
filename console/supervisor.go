// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/netutil"
)

// Supervisor defaults.
const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultWatchdogInterval = 250 * time.Millisecond
	DefaultRestartDelay     = time.Second
)

// listenerRestartNotice is written to the active session when the
// rendezvous listener fails and is about to restart.
const listenerRestartNotice = "Negotiator listener stopped, restarting..."

// generatedNamePrefix prefixes session names made up for clients that
// negotiate with an empty label.
const generatedNamePrefix = "console-"

// SupervisorState is the supervisor's occupancy state.
type SupervisorState int

const (
	// StateIdle: no session; the next negotiation is accepted.
	StateIdle SupervisorState = iota
	// StateNegotiating: a session is reserved and its private endpoint
	// is waiting for the client to connect.
	StateNegotiating
	// StateSessionOpen: the client is connected and the processor is
	// bound to it.
	StateSessionOpen
	// StateClosing: the session is being torn down.
	StateClosing
)

func (s SupervisorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateSessionOpen:
		return "session-open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("SupervisorState(%d)", int(s))
	}
}

// Status is a snapshot of the supervisor, served on the control
// socket.
type Status struct {
	State          string     `cbor:"state" json:"state"`
	Session        string     `cbor:"session,omitempty" json:"session,omitempty"`
	ConnectedAt    *time.Time `cbor:"connected_at,omitempty" json:"connected_at,omitempty"`
	SessionsServed int        `cbor:"sessions_served" json:"sessions_served"`
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// Endpoint locates the run directory holding every socket.
	Endpoint Endpoint

	// RendezvousName is the well-known pipe clients negotiate on.
	RendezvousName string

	// Processor is bound to each session in turn. Required.
	Processor Processor

	Logger *slog.Logger

	// Clock drives the watchdog and the restart backoff. Nil means the
	// real clock.
	Clock clock.Clock

	// ByteTimeout is the per-byte negotiation deadline.
	ByteTimeout time.Duration

	// ConnectTimeout bounds the wait for a negotiated client to
	// connect to its private endpoint.
	ConnectTimeout time.Duration

	// WatchdogInterval is how often a session checks its transport.
	WatchdogInterval time.Duration

	// RestartDelay is the pause before restarting a failed negotiator.
	RestartDelay time.Duration

	// LineTerminator is what clients append to input lines. Empty
	// means the platform LineTerminator.
	LineTerminator string

	// SameUserOnly rejects rendezvous clients running as another uid.
	SameUserOnly bool

	// ReservedNames are pipe names that other sockets in the run
	// directory already use, such as the control socket. Sessions may
	// not take them. The rendezvous name is always reserved.
	ReservedNames []string
}

// Supervisor owns the rendezvous negotiator and at most one session.
// It decides whether a negotiation succeeds, opens the private
// endpoint, binds the processor to the connected client, and tears
// everything down when either side goes away.
type Supervisor struct {
	config     SupervisorConfig
	logger     *slog.Logger
	clock      clock.Clock
	negotiator *Negotiator

	started  atomic.Bool
	sessions sync.WaitGroup

	mu         sync.Mutex
	runContext context.Context
	state      SupervisorState
	active     *session
	served     int
}

// session is one reserved or connected client.
type session struct {
	name        string
	ctx         context.Context
	cancel      context.CancelFunc
	listener    *net.UnixListener
	writer      *syncWriter
	connectedAt time.Time
}

// NewSupervisor validates config and returns an idle Supervisor.
func NewSupervisor(config SupervisorConfig) (*Supervisor, error) {
	if config.Processor == nil {
		return nil, errors.New("supervisor: processor is required")
	}
	if config.Endpoint.RunDirectory == "" {
		return nil, errors.New("supervisor: run directory is required")
	}
	if err := ValidateName(config.RendezvousName); err != nil {
		return nil, fmt.Errorf("supervisor: rendezvous name: %w", err)
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.ByteTimeout <= 0 {
		config.ByteTimeout = DefaultByteTimeout
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.WatchdogInterval <= 0 {
		config.WatchdogInterval = DefaultWatchdogInterval
	}
	if config.RestartDelay <= 0 {
		config.RestartDelay = DefaultRestartDelay
	}
	if config.LineTerminator == "" {
		config.LineTerminator = LineTerminator
	}

	s := &Supervisor{
		config: config,
		logger: config.Logger,
		clock:  config.Clock,
	}
	s.negotiator = NewNegotiator(NegotiatorConfig{
		Endpoint:     config.Endpoint,
		Name:         config.RendezvousName,
		Resolver:     s.resolve,
		ByteTimeout:  config.ByteTimeout,
		SameUserOnly: config.SameUserOnly,
		Logger:       config.Logger,
	})
	detach(config.Processor)
	return s, nil
}

// Run serves the rendezvous endpoint until ctx is cancelled, restarting
// the negotiator after RestartDelay whenever its listener fails. On
// return every session has been torn down. Run may be called once.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.runContext = ctx
	s.mu.Unlock()

	for {
		err := s.negotiator.Listen(ctx)
		if ctx.Err() != nil {
			break
		}
		s.logger.Error("negotiator listener stopped, restarting",
			"error", err,
			"delay", s.config.RestartDelay,
		)
		s.notifyActive(listenerRestartNotice)

		select {
		case <-ctx.Done():
		case <-s.clock.After(s.config.RestartDelay):
			continue
		}
		break
	}

	cancel()
	// reserve checks runContext and adds to sessions under mu, so after
	// this no session can be added behind Wait.
	s.mu.Lock()
	s.runContext = nil
	s.mu.Unlock()
	s.sessions.Wait()
	return nil
}

// Resolve runs the occupancy decision directly, as the negotiator
// does for each request. It exists for callers that negotiate through
// some other channel, and for tests.
func (s *Supervisor) Resolve(ctx context.Context, label string) NegotiationResult {
	var result NegotiationResult
	s.resolve(ctx, label, &result)
	return result
}

func (s *Supervisor) resolve(_ context.Context, label string, result *NegotiationResult) {
	result.Success = false

	name := label
	if name == "" {
		name = generatedNamePrefix + uuid.NewString()
	}
	if err := ValidateName(name); err != nil {
		result.Message = fmt.Sprintf("invalid session name: %v", err)
		return
	}
	if name == s.config.RendezvousName || slices.Contains(s.config.ReservedNames, name) {
		result.Message = fmt.Sprintf("session name %q is reserved", name)
		return
	}

	current, err := s.reserve(name)
	if err != nil {
		if errors.Is(err, ErrNotRunning) {
			s.logger.Error("negotiation before supervisor started", "label", label)
			result.Message = err.Error()
			return
		}
		s.logger.Error("requested connection, but a connection already exists", "label", label)
		result.Message = ConnectionExistsMessage
		return
	}

	listener, err := s.config.Endpoint.Listen(name)
	if err != nil {
		s.logger.Error("opening session endpoint", "session", name, "error", err)
		s.release(current, false)
		s.sessions.Done()
		result.Message = "unable to open session pipe"
		return
	}
	current.listener = listener

	go s.serveSession(current)

	result.Success = true
	result.Message = name
}

// reserve claims occupancy for name. Checking and claiming happen
// under one lock so concurrent requests cannot both succeed. A
// successful reservation is counted in sessions; the caller must call
// sessions.Done once, either from serveSession or on failure.
func (s *Supervisor) reserve(name string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runContext == nil || s.runContext.Err() != nil {
		return nil, ErrNotRunning
	}
	if s.active != nil {
		return nil, errors.New(ConnectionExistsMessage)
	}
	ctx, cancel := context.WithCancel(s.runContext)
	s.active = &session{name: name, ctx: ctx, cancel: cancel}
	s.state = StateNegotiating
	s.sessions.Add(1)
	return s.active, nil
}

func (s *Supervisor) release(current *session, served bool) {
	current.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == current {
		s.active = nil
		s.state = StateIdle
	}
	if served {
		s.served++
	}
}

func (s *Supervisor) setState(current *session, state SupervisorState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == current {
		s.state = state
	}
}

func (s *Supervisor) serveSession(current *session) {
	defer s.sessions.Done()
	logger := s.logger.With("session", current.name)

	conn, err := s.awaitClient(current)
	current.listener.Close()
	if err != nil {
		logger.Warn("session client never connected", "error", err)
		s.release(current, false)
		return
	}

	s.mu.Lock()
	current.writer = &syncWriter{writer: conn}
	current.connectedAt = s.clock.Now()
	if s.active == current {
		s.state = StateSessionOpen
	}
	s.mu.Unlock()
	logger.Info("session connected")

	err = s.runSession(current, conn, logger)
	s.setState(current, StateClosing)
	conn.Close()
	detach(s.config.Processor)
	if err != nil {
		logger.Error("session ended with error", "error", err)
	} else {
		logger.Info("session ended")
	}
	s.release(current, true)
}

// awaitClient accepts the one connection a private endpoint serves.
func (s *Supervisor) awaitClient(current *session) (*net.UnixConn, error) {
	if err := current.listener.SetDeadline(time.Now().Add(s.config.ConnectTimeout)); err != nil {
		return nil, fmt.Errorf("setting accept deadline: %w", err)
	}
	stop := context.AfterFunc(current.ctx, func() { current.listener.Close() })
	defer stop()

	conn, err := current.listener.AcceptUnix()
	if err != nil {
		if current.ctx.Err() != nil {
			return nil, current.ctx.Err()
		}
		if netutil.IsTimeout(err) {
			return nil, fmt.Errorf("no connection within %s", s.config.ConnectTimeout)
		}
		return nil, fmt.Errorf("accepting session client: %w", err)
	}
	return conn, nil
}

var (
	errTransportLost     = errors.New("session transport disconnected")
	errProcessorFinished = errors.New("processor finished")
)

// runSession links the pump, the watchdog, and the processor: the
// first to finish cancels the other two.
func (s *Supervisor) runSession(current *session, conn *net.UnixConn, logger *slog.Logger) error {
	processor := s.config.Processor
	reader := NewSessionReader(conn, current.writer, s.config.LineTerminator)
	processor.SetInput(reader)
	processor.SetOutput(current.writer)

	group, ctx := errgroup.WithContext(current.ctx)
	teardownDone := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(teardownDone)
		processor.Stop()
		reader.Close()
		conn.Close()
	})
	// Wait cancels ctx, so the teardown always runs. It must finish
	// before the processor is handed to the next session.
	defer func() {
		if !stop() {
			<-teardownDone
		}
	}()

	group.Go(func() error {
		return reader.Pump(ctx)
	})
	group.Go(func() error {
		return s.watch(ctx, reader, logger)
	})
	group.Go(func() error {
		if err := processor.Run(ctx); err != nil {
			return fmt.Errorf("running processor: %w", err)
		}
		return errProcessorFinished
	})

	err := group.Wait()
	switch {
	case err == nil,
		errors.Is(err, errTransportLost),
		errors.Is(err, errProcessorFinished),
		errors.Is(err, context.Canceled):
		return nil
	}
	return err
}

// watch polls the transport every WatchdogInterval and ends the
// session once the client has gone.
func (s *Supervisor) watch(ctx context.Context, reader *SessionReader, logger *slog.Logger) error {
	ticker := s.clock.NewTicker(s.config.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !reader.Connected() {
				logger.Info("session client disconnected")
				s.config.Processor.Stop()
				return errTransportLost
			}
		}
	}
}

// notifyActive writes a line to the connected session, if any.
func (s *Supervisor) notifyActive(text string) {
	s.mu.Lock()
	current := s.active
	var writer *syncWriter
	if current != nil {
		writer = current.writer
	}
	s.mu.Unlock()
	if writer == nil {
		return
	}
	if _, err := writer.Write([]byte(text + s.config.LineTerminator)); err != nil {
		s.logger.Warn("notifying session", "session", current.name, "error", err)
	}
}

// Disconnect ends the active session, connected or not.
func (s *Supervisor) Disconnect() error {
	s.mu.Lock()
	current := s.active
	s.mu.Unlock()
	if current == nil {
		return ErrNoSession
	}
	s.logger.Info("disconnecting session", "session", current.name)
	current.cancel()
	return nil
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{
		State:          s.state.String(),
		SessionsServed: s.served,
	}
	if s.active != nil {
		status.Session = s.active.name
		if !s.active.connectedAt.IsZero() {
			connectedAt := s.active.connectedAt
			status.ConnectedAt = &connectedAt
		}
	}
	return status
}
