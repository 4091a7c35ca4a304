// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the tabletop command line.
//
// The root command is built with cobra and carries three persistent flags:
// --config selects the configuration file, --debug turns on debug logging
// and --json switches every command to the JSONResponse envelope.
//
// # Commands
//
//   - chat: interactive REPL, each line routed like a chat message
//   - send: route a single message and print the response
//   - serve: HTTP bridge for a virtual tabletop (see package server)
//   - permissions: level, grant, revoke, history and status
//   - config: show, init, get, set and keys
//   - version: build information
//
// Terminal output is styled with lipgloss and command responses are
// rendered as markdown with glamour. Both fall back to plain text when
// stdout is not a terminal or NO_COLOR is set.
package cli
