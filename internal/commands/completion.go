// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"
)

// =============================================================================
// COMPLETER
// =============================================================================

// Completion represents a completion suggestion.
type Completion struct {
	// Value is the full line after completion
	Value string

	// Description shown alongside
	Description string

	// Score for ranking (higher = better match)
	Score int
}

// Completer handles tab completion for commands and their arguments.
type Completer struct {
	registry *Registry
	prefix   string
}

// NewCompleter creates a completer for commands under prefix.
func NewCompleter(registry *Registry, prefix string) *Completer {
	return &Completer{registry: registry, prefix: prefix}
}

// Complete returns completions for the line typed so far.
func (c *Completer) Complete(line string) []Completion {
	trimmed := strings.TrimLeft(line, " ")
	if len(trimmed) < len(c.prefix) {
		if strings.HasPrefix(c.prefix, trimmed) && trimmed != "" {
			return []Completion{{Value: c.prefix + " ", Score: 100}}
		}
		return nil
	}
	if !strings.HasPrefix(trimmed, c.prefix) {
		return nil
	}

	rest := trimmed[len(c.prefix):]
	if rest == "" {
		return []Completion{{Value: c.prefix + " ", Score: 100}}
	}
	if !startsWithSpace(rest) {
		return nil
	}

	parts := strings.Fields(rest)
	endsWithSpace := strings.HasSuffix(rest, " ")

	// Still typing the command name
	if len(parts) == 0 || (len(parts) == 1 && !endsWithSpace) {
		partial := ""
		if len(parts) == 1 {
			partial = parts[0]
		}
		return c.completeCommands(partial)
	}

	cmd := c.registry.Get(parts[0])
	if cmd == nil {
		return nil
	}

	argIndex := len(parts) - 2
	partial := parts[len(parts)-1]
	if endsWithSpace {
		argIndex++
		partial = ""
	}
	done := parts[1:]
	if !endsWithSpace {
		done = parts[1 : len(parts)-1]
	}
	head := strings.TrimSpace(c.prefix + " " + cmd.Name + " " + strings.Join(done, " "))
	return c.completeArg(cmd, argIndex, partial, head)
}

// Lines returns completion values only, for line editors.
func (c *Completer) Lines(line string) []string {
	comps := c.Complete(line)
	out := make([]string, len(comps))
	for i, comp := range comps {
		out[i] = comp.Value
	}
	return out
}

func (c *Completer) completeCommands(partial string) []Completion {
	partial = strings.ToLower(partial)
	var completions []Completion
	for _, cmd := range c.registry.All() {
		if strings.HasPrefix(cmd.Name, partial) {
			completions = append(completions, Completion{
				Value:       c.prefix + " " + cmd.Name + " ",
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
	}
	sortCompletions(completions)
	return completions
}

func (c *Completer) completeArg(cmd *Command, argIndex int, partial, head string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}
	partial = strings.ToLower(partial)
	var completions []Completion
	for _, v := range cmd.Args[argIndex].Values {
		if strings.HasPrefix(strings.ToLower(v), partial) {
			completions = append(completions, Completion{
				Value: head + " " + v + " ",
				Score: calculateScore(v, partial),
			})
		}
	}
	sortCompletions(completions)
	return completions
}

// calculateScore ranks exact matches first, then shorter prefix matches.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100
	if value == partial {
		return score + 100
	}
	if strings.HasPrefix(value, partial) {
		score += 50
		score += 20 - len(value)
	}
	score -= len(value) / 2
	return score
}

// sortCompletions sorts completions by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.SliceStable(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}
