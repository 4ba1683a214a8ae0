// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/bureau-foundation/console/lib/netutil"
)

// DefaultByteTimeout is how long either side of a negotiation waits
// for each individual byte.
const DefaultByteTimeout = 500 * time.Millisecond

// defaultWriteTimeout bounds writing a negotiation result to a client
// that stopped reading.
const defaultWriteTimeout = 5 * time.Second

// ResolverFunc decides the outcome of a negotiation request. result
// arrives defaulted to failure with an empty message; the resolver
// fills it in. It runs synchronously on the negotiator goroutine, so
// it must not block for long.
type ResolverFunc func(ctx context.Context, label string, result *NegotiationResult)

// NegotiatorConfig configures a Negotiator.
type NegotiatorConfig struct {
	// Endpoint locates the run directory.
	Endpoint Endpoint

	// Name is the rendezvous pipe name.
	Name string

	// Resolver answers each request. Required.
	Resolver ResolverFunc

	// ByteTimeout is the per-byte read deadline. Zero means
	// DefaultByteTimeout.
	ByteTimeout time.Duration

	// MaxFrameSize caps the request payload. Zero means
	// DefaultMaxFrameSize.
	MaxFrameSize uint32

	// SameUserOnly rejects clients whose peer credentials do not match
	// this process's uid.
	SameUserOnly bool

	Logger *slog.Logger
}

// Negotiator serves the rendezvous endpoint: one short exchange per
// client, one client at a time.
type Negotiator struct {
	config NegotiatorConfig
	logger *slog.Logger
}

// NewNegotiator returns a Negotiator. It panics if config.Resolver is
// nil.
func NewNegotiator(config NegotiatorConfig) *Negotiator {
	if config.Resolver == nil {
		panic("console: NegotiatorConfig.Resolver is nil")
	}
	if config.ByteTimeout <= 0 {
		config.ByteTimeout = DefaultByteTimeout
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Negotiator{
		config: config,
		logger: logger.With("rendezvous", config.Name),
	}
}

// Listen opens the rendezvous endpoint and serves clients until ctx is
// cancelled, which is the only case in which it returns nil. Failing
// to open the endpoint or to accept is returned; a misbehaving client
// is logged and dropped.
func (n *Negotiator) Listen(ctx context.Context) error {
	listener, err := n.config.Endpoint.Listen(n.config.Name)
	if err != nil {
		return fmt.Errorf("opening rendezvous endpoint: %w", err)
	}
	defer listener.Close()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	n.logger.Info("negotiator listening", "path", n.config.Endpoint.Path(n.config.Name))
	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting on rendezvous endpoint: %w", err)
		}
		n.serveClient(ctx, conn)
	}
}

func (n *Negotiator) serveClient(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()

	logger := n.logger
	credentials, credErr := peerCredentials(conn)
	if credErr == nil {
		logger = logger.With("peer_pid", credentials.PID, "peer_uid", credentials.UID)
	}
	if n.config.SameUserOnly {
		reason := ""
		switch {
		case credErr != nil:
			reason = "peer credentials unavailable"
		case credentials.UID != uint32(os.Getuid()):
			reason = "permission denied"
		}
		if reason != "" {
			logger.Warn("rejecting negotiation from foreign peer", "reason", reason, "error", credErr)
			n.writeResult(conn, NegotiationResult{Message: reason}, logger)
			return
		}
	}

	payload, err := collectFrame(ctx, conn, n.config.ByteTimeout, n.config.MaxFrameSize, "request")
	if err != nil {
		var negotiationErr *NegotiationError
		if errors.As(err, &negotiationErr) {
			logger.Warn("negotiation failed", "error", err)
		} else {
			logger.Warn("negotiation transport error", "error", err)
		}
		return
	}

	label := string(payload)
	result := NegotiationResult{}
	n.config.Resolver(ctx, label, &result)
	if !n.writeResult(conn, result, logger) {
		return
	}
	logger.Info("negotiation complete", "label", label, "success", result.Success, "message", result.Message)
}

func (n *Negotiator) writeResult(conn net.Conn, result NegotiationResult, logger *slog.Logger) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		logger.Warn("setting write deadline", "error", err)
		return false
	}
	if _, err := conn.Write(EncodeResult(result)); err != nil {
		logger.Warn("sending negotiation result", "error", err)
		return false
	}
	return true
}

// NegotiateWithServer performs the client side of the handshake on a
// connection to the rendezvous endpoint: send label, collect the
// result. Each result byte must arrive within byteTimeout; zero means
// DefaultByteTimeout. The caller closes conn afterwards. Cancelling ctx
// aborts the exchange.
func NegotiateWithServer(ctx context.Context, conn net.Conn, label string, byteTimeout time.Duration) (NegotiationResult, error) {
	if conn == nil {
		return NegotiationResult{}, errors.New("negotiating: nil connection")
	}
	if byteTimeout <= 0 {
		byteTimeout = DefaultByteTimeout
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(EncodeFrame([]byte(label))); err != nil {
		if ctx.Err() != nil {
			return NegotiationResult{}, ctx.Err()
		}
		return NegotiationResult{}, fmt.Errorf("sending negotiation request: %w", err)
	}
	payload, err := collectFrame(ctx, conn, byteTimeout, DefaultMaxFrameSize, "result")
	if err != nil {
		if ctx.Err() != nil {
			return NegotiationResult{}, ctx.Err()
		}
		return NegotiationResult{}, err
	}
	if len(payload) == 0 {
		return NegotiationResult{}, &NegotiationError{
			Stage: "result",
			State: CollectorReady,
			Err:   errors.New("empty result payload"),
		}
	}
	return DecodeResult(payload)
}

// collectFrame reads one frame from conn a byte at a time, giving each
// byte byteTimeout to arrive. A silent, truncated, or oversized frame
// is a *NegotiationError; anything else is a transport error.
// Cancellation is checked between bytes, so it takes effect within one
// byteTimeout.
func collectFrame(ctx context.Context, conn net.Conn, byteTimeout time.Duration, maxSize uint32, stage string) ([]byte, error) {
	collector := NewCollector(maxSize)
	var buffer [1]byte
	for !collector.State().Terminal() {
		if err := ctx.Err(); err != nil {
			collector.Fail(err)
			return nil, err
		}
		if err := conn.SetReadDeadline(time.Now().Add(byteTimeout)); err != nil {
			return nil, fmt.Errorf("setting read deadline: %w", err)
		}
		count, err := conn.Read(buffer[:])
		if count == 1 {
			collector.Collect(buffer[0])
			continue
		}
		if err == nil {
			continue
		}
		stopped := collector.State()
		cause := err
		switch {
		case netutil.IsTimeout(err):
			cause = ErrByteTimeout
		case !netutil.IsExpectedCloseError(err):
			collector.Fail(err)
			return nil, fmt.Errorf("reading negotiation %s: %w", stage, err)
		}
		collector.Fail(cause)
		return nil, &NegotiationError{Stage: stage, State: stopped, Err: cause}
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("clearing read deadline: %w", err)
	}
	if collector.State() == CollectorError {
		return nil, &NegotiationError{Stage: stage, State: CollectorError, Err: collector.Err()}
	}
	return collector.Data(), nil
}
