// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Registry holds the available providers and the one currently in use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	current   string
	logger    *log.Logger
}

// NewRegistry creates an empty registry. A nil logger discards output.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Registry{providers: make(map[string]Provider), logger: logger}
}

// Register adds or replaces a provider under its name.
func (r *Registry) Register(p Provider) {
	name := strings.ToLower(p.Name())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	r.logger.Debug("provider registered", "name", name)
}

// Use selects the current provider.
func (r *Registry) Use(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, name, strings.Join(r.namesLocked(), ", "))
	}
	prev := r.current
	r.current = name
	if prev != name {
		r.logger.Info("provider changed", "from", prev, "to", name)
	}
	return nil
}

// Current returns the selected provider or ErrNoProvider.
func (r *Registry) Current() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[r.current]
	if !ok {
		return nil, ErrNoProvider
	}
	return p, nil
}

// CurrentName returns the selected provider name, or "" if none.
func (r *Registry) CurrentName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
