// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/tabletop-assistant/internal/commands"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")). // Cyan
			MarginBottom(1)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(20)

	// ValueStyle is used for regular values
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// SuccessStyle marks successful operations
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	// ErrorStyle marks failures
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// WarningStyle marks denials and warnings
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// DimStyle is used for hints and secondary information
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	// SeparatorStyle is used for dividers
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// SpeakerStyle labels assistant replies in the chat REPL
	SpeakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("141")). // Purple
			Bold(true)

	// PromptStyle is the REPL prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// RenderSeparator renders a horizontal rule of the given width (default 70).
func RenderSeparator(width ...int) string {
	w := 70
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return SeparatorStyle.Render(strings.Repeat("=", w))
}

// RenderLabel renders a fixed-width label.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}

// RenderConditional styles text only when colors are enabled.
func RenderConditional(style lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}

// =============================================================================
// RESPONSE RENDERING
// =============================================================================

// markdownRenderer renders command output; nil falls back to plain text.
var markdownRenderer *glamour.TermRenderer

func init() {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(DefaultTerminalWidth),
	)
	if err == nil {
		markdownRenderer = r
	}
}

// renderMarkdown renders markdown for a terminal. Piped output and
// rendering failures get the raw text.
func renderMarkdown(content string) string {
	if markdownRenderer == nil || !ColorsEnabled() {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}

// RenderResponse formats a routed response for the terminal.
func RenderResponse(resp commands.Response) string {
	switch resp.Kind {
	case commands.ResponseNone:
		return ""
	case commands.ResponseDenied, commands.ResponseUnknownCommand, commands.ResponseNoProvider:
		return RenderConditional(WarningStyle, WrapText(resp.Text, GetTerminalWidth()))
	case commands.ResponseError, commands.ResponseApology:
		return RenderConditional(ErrorStyle, WrapText(resp.Text, GetTerminalWidth()))
	default:
		return renderMarkdown(resp.Text)
	}
}
