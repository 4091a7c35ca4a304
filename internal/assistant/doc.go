// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant wires configuration into a running tabletop
// assistant: key-value storage, the permission store, the operation
// queue, the entity store, conversation providers, the session and the
// command router.
//
//	a, err := assistant.New(ctx, cfg, assistant.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	a.Start()
//	resp := a.HandleMessage(ctx, commands.Message{Speaker: "GM", Content: "/ai status"})
package assistant
