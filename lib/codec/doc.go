// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by the console
// control socket.
//
// The console uses two encodings with a fixed boundary: the session
// and negotiation pipes carry raw length-prefixed bytes (see package
// console), and the operator control socket carries CBOR. Both the
// service and the CLI import this package so they encode identically.
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// value always produces the same bytes.
//
// Types that are only ever CBOR use `cbor` struct tags. Types that the
// CLI may also print as JSON use `json` tags, which fxamacker/cbor reads
// as a fallback. Never put both tags on one field.
package codec
