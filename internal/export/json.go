// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
)

// JSONExporter writes the transcript as indented JSON.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a transcript to JSON. Command turns are dropped unless
// IncludeCommands is set.
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	out := *t
	out.Turns = filterTurns(t.Turns, e.options)
	return json.MarshalIndent(&out, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string { return ".json" }

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string { return "application/json" }

func filterTurns(turns []conversation.Turn, opts *Options) []conversation.Turn {
	if opts.IncludeCommands {
		return turns
	}
	kept := make([]conversation.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Kind != conversation.KindCommand {
			kept = append(kept, t)
		}
	}
	return kept
}
