// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package permission implements the assistant's tiered permission model.
//
// Five ordered levels (NONE < BASIC < STANDARD < ADVANCED < FULL) each
// carry a cumulative set of capabilities. A Store holds the permanent
// grants derived from the current level plus individual overrides,
// temporary grants that shadow them until they expire, and a bounded
// change history.
//
// # Usage
//
//	store, err := permission.New(permission.WithKV(kv), permission.WithLogger(logger))
//	defer store.Close()
//
//	if store.Check(permission.CapCreateActor) {
//	    // ...
//	}
//
//	err = store.Grant(permission.CapDeleteActor, true, permission.GrantOptions{Force: true})
//	err = store.GrantTemporary(permission.CapCreateActor, 5*time.Minute, true)
//
// Check is fail-closed: anything not granted is denied.
package permission
