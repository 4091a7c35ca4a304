// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// tabletop assistant.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, validation and file watching.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - BackendConfig: Settings for one conversation provider
//   - Watcher: Reloads a config file when it changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (TABLETOP_*)
//   - ~/.tabletop/config.toml
//   - ~/.tabletop/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	prefix := cfg.General.CommandPrefix
package config
