// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks the assistant's session in a game.
//
// A Manager records who the assistant is, when the session began and the
// last time a message was routed. A session expires after a period of
// inactivity (30 minutes by default); the next message after expiry
// starts a fresh session.
//
// # Usage
//
//	mgr := session.NewManager(session.DefaultConfig())
//	mgr.RecordMessage(session.ActivityCommand)
//	status := mgr.GetStatus()
package session
