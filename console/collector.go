// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CollectorState is the progress of a Collector.
type CollectorState int

const (
	// CollectorIdle: no bytes seen yet.
	CollectorIdle CollectorState = iota
	// CollectorLength: filling the 4-byte length prefix.
	CollectorLength
	// CollectorPayload: filling the payload.
	CollectorPayload
	// CollectorReady: a complete frame is available from Data.
	CollectorReady
	// CollectorError: the frame was malformed or collection was
	// abandoned. Err reports why.
	CollectorError
)

func (s CollectorState) String() string {
	switch s {
	case CollectorIdle:
		return "idle"
	case CollectorLength:
		return "collecting-length"
	case CollectorPayload:
		return "collecting-payload"
	case CollectorReady:
		return "ready"
	case CollectorError:
		return "error"
	default:
		return fmt.Sprintf("CollectorState(%d)", int(s))
	}
}

// Terminal reports whether s is Ready or Error.
func (s CollectorState) Terminal() bool {
	return s == CollectorReady || s == CollectorError
}

// ErrCollectorSpent is recorded when bytes are fed to a collector that
// already reached Ready or Error. A collector is single-use.
var ErrCollectorSpent = errors.New("collector already finished")

// Collector assembles one length-prefixed frame from bytes that arrive
// one at a time. It is not safe for concurrent use; one goroutine owns
// it for one frame and then discards it.
type Collector struct {
	state   CollectorState
	maxSize uint32

	header       [frameHeaderLength]byte
	headerFilled int

	size uint32
	data []byte
	err  error
}

// NewCollector returns an idle collector that rejects frames whose
// declared payload exceeds maxSize.
func NewCollector(maxSize uint32) *Collector {
	return &Collector{maxSize: maxSize}
}

// Collect consumes one byte and returns the resulting state.
func (c *Collector) Collect(b byte) CollectorState {
	switch c.state {
	case CollectorIdle, CollectorLength:
		c.state = CollectorLength
		c.header[c.headerFilled] = b
		c.headerFilled++
		if c.headerFilled < frameHeaderLength {
			break
		}
		c.size = binary.BigEndian.Uint32(c.header[:])
		if c.size > c.maxSize {
			c.fail(fmt.Errorf("declared frame size %d exceeds maximum %d", c.size, c.maxSize))
			break
		}
		c.data = make([]byte, 0, c.size)
		if c.size == 0 {
			c.state = CollectorReady
		} else {
			c.state = CollectorPayload
		}
	case CollectorPayload:
		c.data = append(c.data, b)
		if uint32(len(c.data)) == c.size {
			c.state = CollectorReady
		}
	default:
		c.fail(ErrCollectorSpent)
	}
	return c.state
}

// Fail abandons collection with err. A collector that already reached
// Ready keeps its frame; Fail only affects one still in progress.
func (c *Collector) Fail(err error) {
	if c.state == CollectorReady {
		return
	}
	c.fail(err)
}

func (c *Collector) fail(err error) {
	c.state = CollectorError
	c.data = nil
	if c.err == nil {
		c.err = err
	}
}

// State returns the current state.
func (c *Collector) State() CollectorState { return c.state }

// Size returns the declared payload size, valid once the length prefix
// is complete.
func (c *Collector) Size() uint32 { return c.size }

// Data returns the payload. Nil unless the state is Ready.
func (c *Collector) Data() []byte {
	if c.state != CollectorReady {
		return nil
	}
	return c.data
}

// Err returns why the collector entered Error.
func (c *Collector) Err() error { return c.err }
