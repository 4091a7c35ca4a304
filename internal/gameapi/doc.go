// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gameapi turns game-world requests into queued operations.
//
// Every mutation is built as a queue.Operation whose execute body checks
// its own capability when it runs, so an operation whose capability was
// revoked while it waited is rejected without touching the entity store.
// Reads (queries, dice, stats) run directly.
package gameapi
