// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package console

// LineTerminator is the platform line terminator.
const LineTerminator = "\r\n"
