// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gameapi

import (
	"context"
	"fmt"

	"github.com/jeranaias/tabletop-assistant/internal/dice"
	"github.com/jeranaias/tabletop-assistant/internal/entity"
	"github.com/jeranaias/tabletop-assistant/internal/permission"
)

// queryCapability maps a collection to the capability needed to read it.
var queryCapability = map[entity.Collection]permission.Capability{
	entity.Actors:   permission.CapQueryActors,
	entity.Items:    permission.CapQueryItems,
	entity.Scenes:   permission.CapQueryScenes,
	entity.Journals: permission.CapQueryJournal,
	entity.Macros:   permission.CapQueryMacros,
}

// QueryCapability returns the capability needed to read c.
func QueryCapability(c entity.Collection) permission.Capability {
	if capability, ok := queryCapability[c]; ok {
		return capability
	}
	return permission.CapViewDocuments
}

// Query lists documents in c matching f. Reads bypass the queue.
func (h *Handler) Query(ctx context.Context, c entity.Collection, f entity.Filter) ([]entity.Document, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownCollection, c)
	}
	if err := h.require(QueryCapability(c)); err != nil {
		return nil, err
	}
	return h.store.Find(ctx, c, f)
}

// QueryActors lists actors matching f.
func (h *Handler) QueryActors(ctx context.Context, f entity.Filter) ([]entity.Document, error) {
	return h.Query(ctx, entity.Actors, f)
}

// FindByName returns the first document in c with the given name.
func (h *Handler) FindByName(ctx context.Context, c entity.Collection, name string) (entity.Document, error) {
	if err := h.require(QueryCapability(c)); err != nil {
		return entity.Document{}, err
	}
	docs, err := h.store.Find(ctx, c, entity.Filter{ExactName: name, Limit: 1})
	if err != nil {
		return entity.Document{}, err
	}
	if len(docs) == 0 {
		return entity.Document{}, fmt.Errorf("%w: %s %q", entity.ErrNotFound, c.Singular(), name)
	}
	return docs[0], nil
}

// RollDice evaluates a dice formula.
func (h *Handler) RollDice(formula string) (dice.Result, error) {
	if err := h.require(permission.CapRollDice); err != nil {
		return dice.Result{}, err
	}
	return dice.RollWith(h.roller, formula)
}
