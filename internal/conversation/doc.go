// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation keeps the rolling chat history and assembles the
// context bundle handed to a conversation provider.
//
// History is a bounded FIFO: once full, the oldest turn is evicted on
// every append. Build is a pure function over the history, the world
// metadata and the current speaker; it never calls the network.
package conversation
