// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers shared by the console
// binaries: reporting an error that happened before the structured
// logger exists, and exiting.
package process
