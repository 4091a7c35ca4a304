// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// TERMINAL WIDTH
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width used for wrapping
	MinTerminalWidth = 40
)

// GetTerminalWidth returns the current terminal width, or
// DefaultTerminalWidth if it cannot be determined.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// WrapText wraps text on word boundaries to maxWidth display columns.
// Wide runes (CJK, emoji) count as two columns. Existing newlines are
// kept.
func WrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = GetTerminalWidth()
	}
	if maxWidth > 10 {
		maxWidth -= 2
	}

	var result strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			result.WriteString("\n")
		}
		if runewidth.StringWidth(line) <= maxWidth {
			result.WriteString(line)
			continue
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		current := words[0]
		width := runewidth.StringWidth(current)
		for _, word := range words[1:] {
			w := runewidth.StringWidth(word)
			if width+1+w <= maxWidth {
				current += " " + word
				width += 1 + w
				continue
			}
			result.WriteString(current)
			result.WriteString("\n")
			current, width = word, w
		}
		result.WriteString(current)
	}
	return result.String()
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

var (
	colorsEnabled     bool
	colorsEnabledOnce sync.Once
)

// ColorsEnabled reports whether colored output should be used. NO_COLOR
// disables colors, FORCE_COLOR enables them, otherwise stdout must be a
// terminal.
func ColorsEnabled() bool {
	colorsEnabledOnce.Do(func() {
		if os.Getenv("NO_COLOR") != "" {
			colorsEnabled = false
			return
		}
		if os.Getenv("FORCE_COLOR") != "" {
			colorsEnabled = true
			return
		}
		colorsEnabled = IsStdoutTTY()
	})
	return colorsEnabled
}

// GetColorProfile returns Ascii when colors are off, otherwise the
// detected terminal profile.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}
