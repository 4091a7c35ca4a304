// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gameapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
	"github.com/jeranaias/tabletop-assistant/internal/dice"
	"github.com/jeranaias/tabletop-assistant/internal/entity"
	"github.com/jeranaias/tabletop-assistant/internal/permission"
	"github.com/jeranaias/tabletop-assistant/internal/queue"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrValidation is returned for documents that fail validation.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicate is returned when a document with the same name exists.
	ErrDuplicate = errors.New("duplicate name")

	// ErrPlayerOwned is returned when deleting a player character without Force.
	ErrPlayerOwned = errors.New("actor is a player character")
)

// =============================================================================
// HANDLER
// =============================================================================

// Checker answers capability checks.
type Checker interface {
	Check(c permission.Capability) bool
}

// Handler builds operations against an entity store.
type Handler struct {
	store  entity.Store
	perms  Checker
	queue  *queue.Queue
	roller dice.Roller
	macros MacroRunner
	logger *log.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRoller sets the dice source.
func WithRoller(r dice.Roller) Option {
	return func(h *Handler) { h.roller = r }
}

// WithMacroRunner sets the macro runner.
func WithMacroRunner(r MacroRunner) Option {
	return func(h *Handler) {
		if r != nil {
			h.macros = r
		}
	}
}

// New creates a handler. Mutations are submitted to q.
func New(store entity.Store, perms Checker, q *queue.Queue, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		perms:  perms,
		queue:  q,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.macros == nil {
		h.macros = &DefaultMacroRunner{Roller: h.roller}
	}
	return h
}

// Store returns the entity store.
func (h *Handler) Store() entity.Store {
	return h.store
}

func (h *Handler) require(c permission.Capability) error {
	if !h.perms.Check(c) {
		return permission.Denied(c)
	}
	return nil
}

// enqueue wraps fn in an operation that re-checks c when it runs.
func (h *Handler) enqueue(kind queue.Kind, c entity.Collection, capability permission.Capability,
	desc string, payload any, fn func(ctx context.Context) (any, error)) (*queue.Handle, error) {

	op := queue.NewOperation(kind, string(c), func(ctx context.Context) (any, error) {
		if err := h.require(capability); err != nil {
			return nil, err
		}
		start := time.Now()
		res, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		h.logger.Info(desc, "collection", c, "duration", time.Since(start))
		return res, nil
	})
	op.WithDescription(desc).WithPayload(payload)
	return h.queue.Enqueue(op)
}

// Wait waits for a handle and converts the result to T.
func Wait[T any](ctx context.Context, handle *queue.Handle) (T, error) {
	var zero T
	res, err := handle.Wait(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected result type %T", res)
	}
	return v, nil
}

// =============================================================================
// STATS AND WORLD
// =============================================================================

// Stats reports queue state and collection sizes.
type Stats struct {
	QueueLength int                       `json:"queue_length"`
	Processing  bool                      `json:"processing"`
	Collections map[entity.Collection]int `json:"collections"`
}

// Stats returns queue and collection statistics.
func (h *Handler) Stats(ctx context.Context) (Stats, error) {
	qs := h.queue.Stats()
	counts, err := entity.Counts(ctx, h.store)
	if err != nil {
		return Stats{}, err
	}
	return Stats{QueueLength: qs.Pending, Processing: qs.Processing, Collections: counts}, nil
}

// World describes the game world for conversation context. The player
// count is the number of player-owned characters.
func (h *Handler) World(ctx context.Context, systemName string) conversation.World {
	w := conversation.World{SystemName: systemName}
	if scene, err := entity.ActiveScene(ctx, h.store); err == nil {
		w.ActiveScene = scene.Name
	}
	chars, err := h.store.Find(ctx, entity.Actors, entity.Filter{Type: ActorCharacter})
	if err == nil {
		for _, c := range chars {
			if c.PlayerOwned() {
				w.PlayerCount++
			}
		}
	}
	return w
}
