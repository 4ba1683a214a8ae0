// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the console service's YAML configuration.
//
// Configuration comes from exactly one file, named by the
// BUREAU_CONSOLE_CONFIG environment variable ([Load]) or a --config
// flag ([LoadFile]). There is no discovery and no per-field environment
// override. A service started without a file runs on [Default].
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches. Production
// without an explicit section restricts the rendezvous endpoint to
// clients running as the service's own user.
//
// Path fields expand ${HOME}, ${XDG_RUNTIME_DIR}, ${RUN_DIRECTORY} and
// ${VAR:-default} after loading.
package config
