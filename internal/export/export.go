// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
	"github.com/jeranaias/tabletop-assistant/internal/util"
)

// ErrEmptyTranscript is returned when there is nothing to export.
var ErrEmptyTranscript = errors.New("transcript has no turns")

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Session describes the assistant session a transcript came from.
type Session struct {
	ID        string    `json:"id"`
	Assistant string    `json:"assistant"`
	System    string    `json:"system,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Transcript is a snapshot of conversation turns.
type Transcript struct {
	Session    Session             `json:"session"`
	ExportedAt time.Time           `json:"exported_at"`
	Turns      []conversation.Turn `json:"turns"`
}

// NewTranscript copies turns into a transcript stamped with the current time.
func NewTranscript(turns []conversation.Turn, s Session) *Transcript {
	copied := make([]conversation.Turn, len(turns))
	copy(copied, turns)
	return &Transcript{
		Session:    s,
		ExportedAt: time.Now(),
		Turns:      copied,
	}
}

// Title is the heading used for the transcript.
func (t *Transcript) Title() string {
	if t.Session.System != "" {
		return fmt.Sprintf("%s session with %s", t.Session.System, t.Session.Assistant)
	}
	return fmt.Sprintf("Session with %s", t.Session.Assistant)
}

func (t *Transcript) validate() error {
	if t == nil || len(t.Turns) == 0 {
		return ErrEmptyTranscript
	}
	return nil
}

// =============================================================================
// EXPORTERS
// =============================================================================

// Exporter converts a transcript to one file format.
type Exporter interface {
	Export(t *Transcript) ([]byte, error)
	FileExtension() string
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds the session header.
	IncludeMetadata bool

	// IncludeTimestamps adds a time to each turn.
	IncludeTimestamps bool

	// IncludeCommands keeps /ai command turns. Replies are always kept.
	IncludeCommands bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		IncludeCommands:   true,
	}
}

// ForPath returns the exporter matching the extension of path. Unknown
// extensions get Markdown.
func ForPath(path string, opts *Options) Exporter {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONExporter(opts)
	default:
		return NewMarkdownExporter(opts)
	}
}

// ExportToFile writes t to path in the format implied by its extension.
// The file is replaced atomically and readable only by the owner.
func ExportToFile(t *Transcript, path string, opts *Options) error {
	content, err := ForPath(path, opts).Export(t)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := util.WriteFileAtomic(path, content, 0600, 0700); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// DefaultFilename builds a file name from the session start time.
func DefaultFilename(t *Transcript, ext string) string {
	stamp := t.Session.StartedAt
	if stamp.IsZero() {
		stamp = t.ExportedAt
	}
	return fmt.Sprintf("transcript_%s_%s%s",
		sanitizeFilename(t.Session.Assistant),
		stamp.Format("20060102_150405"),
		ext,
	)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names.
func sanitizeFilename(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > 50 {
		runes = runes[:50]
	}

	var b strings.Builder
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
