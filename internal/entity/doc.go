// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package entity provides the game-world document store.
//
// Documents live in named collections (actors, items, scenes, journals,
// macros). The Store interface is implemented in memory and on SQLite.
// Stores perform no permission checks and no queuing: callers that
// mutate documents go through the operation queue.
//
// # Usage
//
//	store, err := entity.OpenSQLite("~/.tabletop/world.db")
//	doc, err := store.Create(ctx, entity.Document{Collection: entity.Actors, Name: "Goblin", Type: "npc"})
//	docs, err := store.Find(ctx, entity.Actors, entity.Filter{Name: "gob", Limit: 10})
package entity
