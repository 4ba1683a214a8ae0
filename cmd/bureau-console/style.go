// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Status messages go to stderr, so styles are rendered for stderr's
// color profile. Colors are ANSI 256 codes.
var styles = newStyles(lipgloss.NewRenderer(os.Stderr))

type styleSet struct {
	failure lipgloss.Style
	notice  lipgloss.Style
	label   lipgloss.Style
}

func newStyles(renderer *lipgloss.Renderer) styleSet {
	return styleSet{
		failure: renderer.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		notice:  renderer.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
		label:   renderer.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
	}
}
