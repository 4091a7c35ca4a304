// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
)

func sampleTranscript() *Transcript {
	start := time.Date(2025, 3, 14, 19, 30, 0, 0, time.UTC)
	turns := []conversation.Turn{
		{Timestamp: start, Speaker: "Aria", Content: "I open the door.", Kind: conversation.KindOrdinary, MessageType: "ic"},
		{Timestamp: start.Add(time.Minute), Speaker: "GM", Content: "describe the room", Kind: conversation.KindCommand, MessageType: "ooc"},
		{Timestamp: start.Add(2 * time.Minute), Speaker: "Sage", Content: "Dust hangs in the air.", Kind: conversation.KindMentionReply},
	}
	return NewTranscript(turns, Session{ID: "sess-1", Assistant: "Sage", System: "D&D 5e", StartedAt: start})
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, "session: sess-1")
	assert.Contains(t, md, "turns: 3")
	assert.Contains(t, md, "# D&D 5e session with Sage")
	assert.Contains(t, md, "**Aria** <sub>19:30:00</sub>\n\n> I open the door.")
	assert.Contains(t, md, "**GM** _(to the assistant)_")
	assert.Contains(t, md, "**Sage** _(assistant)_")
}

func TestMarkdownExporter_WithoutCommands(t *testing.T) {
	out, err := NewMarkdownExporter(&Options{}).Export(sampleTranscript())
	require.NoError(t, err)
	md := string(out)

	assert.False(t, strings.HasPrefix(md, "---"))
	assert.NotContains(t, md, "describe the room")
	assert.NotContains(t, md, "<sub>")
	assert.Contains(t, md, "Dust hangs in the air.")
}

func TestJSONExporter(t *testing.T) {
	out, err := NewJSONExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)

	var decoded Transcript
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "sess-1", decoded.Session.ID)
	require.Len(t, decoded.Turns, 3)
	assert.Equal(t, conversation.KindMentionReply, decoded.Turns[2].Kind)
}

func TestExport_EmptyTranscript(t *testing.T) {
	empty := NewTranscript(nil, Session{Assistant: "Sage"})
	_, err := NewMarkdownExporter(nil).Export(empty)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
	_, err = NewJSONExporter(nil).Export(nil)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestExportToFile_PicksFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	tr := sampleTranscript()

	jsonPath := filepath.Join(dir, "out", "session.JSON")
	require.NoError(t, ExportToFile(tr, jsonPath, nil))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	mdPath := filepath.Join(dir, "session.txt")
	require.NoError(t, ExportToFile(tr, mdPath, nil))
	data, err = os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# D&D 5e session with Sage")

	info, err := os.Stat(mdPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDefaultFilename(t *testing.T) {
	tr := sampleTranscript()
	tr.Session.Assistant = `Sage: the "wise"`
	assert.Equal(t, "transcript_Sage-_the_-wise-_20250314_193000.md", DefaultFilename(tr, ".md"))
	assert.Equal(t, "session", sanitizeFilename("  "))
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, `\#1 \*bold\*`, escapeMarkdown("#1 *bold*"))
	assert.Equal(t, "plain", escapeYAML("plain"))
	assert.Equal(t, `"a: \"b\""`, escapeYAML(`a: "b"`))
}
