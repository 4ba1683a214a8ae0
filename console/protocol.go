// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"encoding/binary"
	"fmt"
)

// frameHeaderLength is the size of the length prefix on every
// negotiation frame. The length is a big-endian uint32 counting
// payload bytes only.
const frameHeaderLength = 4

// DefaultMaxFrameSize caps negotiation payloads. Labels and results
// are short strings; anything larger is a misbehaving client.
const DefaultMaxFrameSize = 64 * 1024

// Result status bytes, the first payload byte of a negotiation reply.
const (
	ResultFailure byte = 0
	ResultSuccess byte = 1
)

// EscapeCharacter introduces an in-band command in the session stream.
const EscapeCharacter byte = 0x1B

// EscapeCommand is the byte following EscapeCharacter.
type EscapeCommand byte

// ReadRequest asks the client for one line of input.
const ReadRequest EscapeCommand = 0x30

func (c EscapeCommand) String() string {
	switch c {
	case ReadRequest:
		return "read-request"
	default:
		return fmt.Sprintf("escape(0x%02x)", byte(c))
	}
}

// Sequence returns the two bytes that carry c on the wire.
func (c EscapeCommand) Sequence() []byte {
	return []byte{EscapeCharacter, byte(c)}
}

// EncodeFrame prefixes payload with its length.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, frameHeaderLength+len(payload))
	binary.BigEndian.PutUint32(frame[:frameHeaderLength], uint32(len(payload)))
	copy(frame[frameHeaderLength:], payload)
	return frame
}

// DecodeFrame extracts the payload of one complete frame held in
// memory. Stream decoding goes through a Collector directly; this
// exists for callers that already hold the whole frame.
func DecodeFrame(frame []byte) ([]byte, error) {
	collector := NewCollector(DefaultMaxFrameSize)
	for index, b := range frame {
		if collector.Collect(b) == CollectorError {
			return nil, collector.Err()
		}
		if collector.State() == CollectorReady && index != len(frame)-1 {
			return nil, fmt.Errorf("%d trailing bytes after frame", len(frame)-index-1)
		}
	}
	if collector.State() != CollectorReady {
		return nil, fmt.Errorf("incomplete frame: %s after %d bytes", collector.State(), len(frame))
	}
	return collector.Data(), nil
}

// NegotiationResult is the service's answer to a negotiation request.
// On success Message is the private pipe name; on failure it is the
// reason.
type NegotiationResult struct {
	Success bool
	Message string
}

// EncodeResult frames result as [status byte][UTF-8 message].
func EncodeResult(result NegotiationResult) []byte {
	payload := make([]byte, 1, 1+len(result.Message))
	payload[0] = ResultFailure
	if result.Success {
		payload[0] = ResultSuccess
	}
	payload = append(payload, result.Message...)
	return EncodeFrame(payload)
}

// DecodeResult parses a result payload (the frame contents, without
// the length prefix). Any non-zero status byte is success.
func DecodeResult(payload []byte) (NegotiationResult, error) {
	if len(payload) == 0 {
		return NegotiationResult{}, fmt.Errorf("empty negotiation result")
	}
	return NegotiationResult{
		Success: payload[0] != ResultFailure,
		Message: string(payload[1:]),
	}, nil
}
