// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chat transcripts to disk.
//
// A Transcript is a snapshot of the conversation history plus session
// metadata. Two formats are supported: Markdown for reading and JSON for
// tooling. ForPath picks the exporter from the file extension:
//
//	t := export.NewTranscript(history.Recent(0), export.Session{...})
//	err := export.ExportToFile(t, "session-12.md", nil)
package export
