// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the storage and CLI layers.
//
//   - WriteFileAtomic: crash-safe file replacement (temp file, fsync, rename)
//   - Truncate: display-width aware truncation for chat output
package util
