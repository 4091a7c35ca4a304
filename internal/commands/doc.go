// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands routes chat messages to /ai commands, the
// conversation provider or the rolling history.
//
// Every message goes through one state machine in Router.Route:
//
//  1. Text starting with the prefix (default "/ai") is split into a
//     command name and whitespace-separated arguments.
//  2. Unknown names produce a "not recognized" reply.
//  3. The command's capability is checked against the permission store
//     on every call. A denied command never reaches its handler.
//  4. The handler runs; errors and panics become an error reply.
//  5. Text containing the mention token (default "@ai", any case) goes
//     to the current provider, or gets a greeting when nothing else is
//     left after removing the token.
//  6. In-character and out-of-character messages are kept in the
//     history; everything else is ignored.
//
// # Key Types
//
//   - Registry: registered commands and their capabilities
//   - Parser: prefix and mention recognition
//   - Router: the routing state machine
//   - Completer: tab completion for the chat REPL
//
// # Built-in Commands
//
//   - help, status, chat: send-message
//   - roll: roll-dice
//   - create: create-actor
//   - search: query-actors
//   - macro: execute-macro
//   - scene: create-scene
//   - config: modify-settings
//
// # Usage
//
//	router := commands.NewRouter(commands.NewRegistry(), perms,
//	    commands.WithProviders(providers),
//	    commands.WithHistory(history),
//	)
//	if err := commands.RegisterBuiltins(router, commands.Builtins{Game: game, Permissions: perms}); err != nil {
//	    return err
//	}
//	resp := router.Route(ctx, commands.Message{Speaker: "Aria", Content: "/ai roll 1d20+5 Stealth"})
package commands
