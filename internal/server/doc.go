// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the assistant to a virtual tabletop over HTTP.
//
// The game host posts every chat message it sees and relays any reply
// back into its chat log. All endpoints speak JSON.
//
// Endpoints:
//   - POST /v1/messages             - Route one chat message
//   - GET  /v1/commands             - Commands the current permissions allow
//   - GET  /v1/status               - Router, permission, queue and request stats
//   - GET  /v1/permissions/history  - Recent permission changes (?limit=N)
//   - GET  /health                  - Liveness, exempt from authentication
//
// Requests pass through recovery, security headers, logging, CORS, bearer
// token authentication and a per-client rate limit.
package server
