// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the key-value persistence sink used for
// permission and configuration state.
//
// # Key Types
//
//   - KV: Get/Set/Delete contract shared by every backend
//   - MemoryKV: in-process map, used by tests and ephemeral sessions
//   - FileKV: one JSON file per key, written atomically
//   - RedisKV: Redis-backed store with a key prefix
//
// # Usage
//
//	kv, err := storage.Open(ctx, storage.Options{Backend: "file", Path: dir})
//	err = kv.Set(ctx, "permissions.state", data)
//	data, err := kv.Get(ctx, "permissions.state")
//
// A missing key is reported as ErrNotFound by every backend.
package storage
