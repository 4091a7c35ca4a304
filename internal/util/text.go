// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Truncate shortens s to at most width terminal columns, appending "..."
// when anything was cut. Wide (CJK) runes count as two columns.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

// SingleLine collapses all whitespace runs (including newlines) into single
// spaces so multi-line content can be previewed on one line.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
