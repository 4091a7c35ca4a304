// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	turns := filterTurns(t.Turns, e.options)

	var sb strings.Builder

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(t.Title()))
		fmt.Fprintf(&sb, "session: %s\n", t.Session.ID)
		fmt.Fprintf(&sb, "assistant: %s\n", escapeYAML(t.Session.Assistant))
		if !t.Session.StartedAt.IsZero() {
			fmt.Fprintf(&sb, "date: %s\n", t.Session.StartedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&sb, "turns: %d\n", len(turns))
		fmt.Fprintf(&sb, "exported: %s\n", t.ExportedAt.Format(time.RFC3339))
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Title()))

	if e.options.IncludeMetadata && !t.Session.StartedAt.IsZero() {
		fmt.Fprintf(&sb, "- **Started**: %s\n", formatTimestamp(t.Session.StartedAt))
		fmt.Fprintf(&sb, "- **Turns**: %d\n\n", len(turns))
	}

	for _, turn := range turns {
		sb.WriteString(e.formatTurn(turn))
		sb.WriteString("\n\n")
	}
	return []byte(strings.TrimRight(sb.String(), "\n") + "\n"), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string { return "text/markdown" }

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// formatTurn renders one turn. In-character lines are quoted, assistant
// replies and commands are labelled.
func (e *MarkdownExporter) formatTurn(t conversation.Turn) string {
	var sb strings.Builder
	speaker := t.Speaker
	if speaker == "" {
		speaker = "Unknown"
	}
	fmt.Fprintf(&sb, "**%s**", escapeMarkdown(speaker))
	switch {
	case t.Kind == conversation.KindMentionReply:
		sb.WriteString(" _(assistant)_")
	case t.Kind == conversation.KindCommand:
		sb.WriteString(" _(to the assistant)_")
	case t.MessageType == conversation.TypeOutOfCharacter:
		sb.WriteString(" _(ooc)_")
	}
	if e.options.IncludeTimestamps && !t.Timestamp.IsZero() {
		fmt.Fprintf(&sb, " <sub>%s</sub>", formatShortTimestamp(t.Timestamp))
	}
	sb.WriteString("\n\n")

	content := strings.TrimSpace(t.Content)
	if t.MessageType == conversation.TypeInCharacter && t.Kind == conversation.KindOrdinary {
		content = "> " + strings.ReplaceAll(content, "\n", "\n> ")
	}
	sb.WriteString(content)
	return sb.String()
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break headings and labels.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("#", "\\#", "*", "\\*", "_", "\\_", "[", "\\[", "]", "\\]")
	return r.Replace(s)
}

// escapeYAML quotes values containing YAML special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		r := strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n", "\r", "\\r")
		return fmt.Sprintf("\"%s\"", r.Replace(s))
	}
	return s
}
