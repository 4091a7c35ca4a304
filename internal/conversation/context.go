// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"fmt"
	"strings"
	"time"
)

// DefaultContextTurns is the number of recent turns included in a Context.
const DefaultContextTurns = 10

// World is ambient metadata about the game world.
type World struct {
	ActiveScene string `json:"active_scene,omitempty"`
	PlayerCount int    `json:"player_count"`
	SystemName  string `json:"system_name,omitempty"`
}

// Context is the bundle handed to a conversation provider for one turn.
type Context struct {
	Speaker   string    `json:"speaker"`
	Recent    []Turn    `json:"recent"`
	World     World     `json:"world"`
	Timestamp time.Time `json:"timestamp"`
}

// Build assembles the context for a free-text turn from the newest k
// turns of h. A non-positive k uses DefaultContextTurns; a nil history
// yields no turns.
func Build(h *History, world World, speaker string, k int) Context {
	if k <= 0 {
		k = DefaultContextTurns
	}
	if speaker == "" {
		speaker = "Unknown"
	}
	recent := []Turn{}
	if h != nil {
		recent = h.Recent(k)
	}
	return Context{
		Speaker:   speaker,
		Recent:    recent,
		World:     world,
		Timestamp: time.Now(),
	}
}

// Summary renders the world metadata as a single line.
func (w World) Summary() string {
	var parts []string
	if w.SystemName != "" {
		parts = append(parts, "System: "+w.SystemName)
	}
	if w.ActiveScene != "" {
		parts = append(parts, "Scene: "+w.ActiveScene)
	}
	parts = append(parts, fmt.Sprintf("Players: %d", w.PlayerCount))
	return strings.Join(parts, " | ")
}

// Transcript renders the recent turns as "speaker: content" lines.
func (c Context) Transcript() string {
	var b strings.Builder
	for _, t := range c.Recent {
		fmt.Fprintf(&b, "%s: %s\n", t.Speaker, t.Content)
	}
	return b.String()
}
