// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/tabletop-assistant/internal/permission"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// HandlerFunc executes a command and returns the response text.
type HandlerFunc func(ctx context.Context, inv *Invocation) (string, error)

// Invocation carries one parsed command call.
type Invocation struct {
	// Name is the command name as typed
	Name string

	// Args are the whitespace-split arguments
	Args []string

	// RawArgs is the argument text after the command name
	RawArgs string

	// Message is the chat message that carried the command
	Message Message
}

// Arg returns argument i or "".
func (inv *Invocation) Arg(i int) string {
	if i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

// Rest joins the arguments from index i.
func (inv *Invocation) Rest(i int) string {
	if i >= len(inv.Args) {
		return ""
	}
	return strings.Join(inv.Args[i:], " ")
}

// Command represents an /ai command.
type Command struct {
	// Name is the command name without prefix (e.g. "roll")
	Name string

	// Capability is required to run the command
	Capability permission.Capability

	// Usage shows argument syntax without prefix (e.g. "roll <formula> [reason]")
	Usage string

	// Description is shown in help and completion
	Description string

	// Args describe arguments for completion
	Args []ArgDef

	// Handler executes the command
	Handler HandlerFunc

	// Category groups commands in help
	Category string
}

// ArgDef describes an argument for completion.
type ArgDef struct {
	Name     string
	Required bool

	// Values lists the accepted words for enumerated arguments
	Values []string
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

var (
	// ErrUnknownCommand is returned for command names that are not registered.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidCommand is returned when registering a malformed command.
	ErrInvalidCommand = errors.New("invalid command")
)

// Registry holds all registered commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds a command. The name must be a single word, the capability
// must be known and a handler is required. Registering a name twice
// replaces the earlier command.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("%w: bad name %q", ErrInvalidCommand, cmd.Name)
	}
	if !cmd.Capability.Known() {
		return fmt.Errorf("%w: %s: %w", ErrInvalidCommand, name, permission.ErrUnknownCapability)
	}
	if cmd.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidCommand, name)
	}
	cmd.Name = name
	if cmd.Usage == "" {
		cmd.Usage = name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = cmd
	return nil
}

// MustRegister registers cmd and panics on error. Used for built-ins.
func (r *Registry) MustRegister(cmd *Command) {
	if err := r.Register(cmd); err != nil {
		panic(err)
	}
}

// Get retrieves a command by name.
func (r *Registry) Get(name string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[strings.ToLower(name)]
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	r.mu.RLock()
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	r.mu.RUnlock()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Allowed returns the commands whose capability passes check.
func (r *Registry) Allowed(check func(permission.Capability) bool) []*Command {
	var out []*Command
	for _, cmd := range r.All() {
		if check(cmd.Capability) {
			out = append(out, cmd)
		}
	}
	return out
}

// ByCategory returns commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}
