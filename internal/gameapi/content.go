// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gameapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/tabletop-assistant/internal/entity"
	"github.com/jeranaias/tabletop-assistant/internal/permission"
	"github.com/jeranaias/tabletop-assistant/internal/queue"
)

// =============================================================================
// ITEMS
// =============================================================================

// CreateItem queues creation of an item. A non-empty actorID embeds the
// item in that actor.
func (h *Handler) CreateItem(doc entity.Document, actorID string) (*queue.Handle, error) {
	doc.Collection = entity.Items
	if actorID != "" {
		doc.ParentID = actorID
	}
	return h.enqueue(queue.KindCreate, entity.Items, permission.CapCreateItem, "item created", doc,
		func(ctx context.Context) (any, error) {
			if err := requireName(doc); err != nil {
				return nil, err
			}
			if doc.ParentID != "" {
				if _, err := h.store.Get(ctx, entity.Actors, doc.ParentID); err != nil {
					return nil, err
				}
			}
			return h.store.Create(ctx, doc)
		})
}

// UpdateItem queues an item update. A non-empty actorID requires the item
// to be embedded in that actor.
func (h *Handler) UpdateItem(id string, patch entity.Patch, actorID string) (*queue.Handle, error) {
	return h.enqueue(queue.KindUpdate, entity.Items, permission.CapUpdateItem, "item updated", patch,
		func(ctx context.Context) (any, error) {
			item, err := h.store.Get(ctx, entity.Items, id)
			if err != nil {
				return nil, err
			}
			if actorID != "" && item.ParentID != actorID {
				return nil, fmt.Errorf("%w: item %q in actor %q", entity.ErrNotFound, id, actorID)
			}
			return h.store.Update(ctx, entity.Items, id, patch)
		})
}

// =============================================================================
// SCENES
// =============================================================================

// CreateScene queues creation of a scene.
func (h *Handler) CreateScene(doc entity.Document) (*queue.Handle, error) {
	doc.Collection = entity.Scenes
	return h.enqueue(queue.KindCreate, entity.Scenes, permission.CapCreateScene, "scene created", doc,
		func(ctx context.Context) (any, error) {
			if err := requireName(doc); err != nil {
				return nil, err
			}
			return h.store.Create(ctx, doc)
		})
}

// ActivateScene queues activation of a scene given its ID or name.
func (h *Handler) ActivateScene(idOrName string) (*queue.Handle, error) {
	return h.enqueue(queue.KindUpdate, entity.Scenes, permission.CapActivateScene, "scene activated", idOrName,
		func(ctx context.Context) (any, error) {
			scene, err := h.Resolve(ctx, entity.Scenes, idOrName)
			if err != nil {
				return nil, err
			}
			return h.store.ActivateScene(ctx, scene.ID)
		})
}

// =============================================================================
// JOURNALS
// =============================================================================

// CreateJournal queues creation of a journal entry.
func (h *Handler) CreateJournal(doc entity.Document) (*queue.Handle, error) {
	doc.Collection = entity.Journals
	return h.enqueue(queue.KindCreate, entity.Journals, permission.CapCreateJournal, "journal entry created", doc,
		func(ctx context.Context) (any, error) {
			if err := requireName(doc); err != nil {
				return nil, err
			}
			return h.store.Create(ctx, doc)
		})
}

// =============================================================================
// MACROS
// =============================================================================

// CreateMacro queues creation of a macro. Data["command"] is required.
func (h *Handler) CreateMacro(doc entity.Document) (*queue.Handle, error) {
	doc.Collection = entity.Macros
	return h.enqueue(queue.KindCreate, entity.Macros, permission.CapCreateMacro, "macro created", doc,
		func(ctx context.Context) (any, error) {
			if err := requireName(doc); err != nil {
				return nil, err
			}
			if MacroCommand(doc) == "" {
				return nil, fmt.Errorf("%w: command is required", ErrValidation)
			}
			return h.store.Create(ctx, doc)
		})
}

// ExecuteMacro queues execution of a macro given its ID or name. The
// result is the macro output.
func (h *Handler) ExecuteMacro(idOrName string, args []string) (*queue.Handle, error) {
	return h.enqueue(queue.KindExecute, entity.Macros, permission.CapExecuteMacro, "macro executed", idOrName,
		func(ctx context.Context) (any, error) {
			macro, err := h.Resolve(ctx, entity.Macros, idOrName)
			if err != nil {
				return nil, err
			}
			return h.macros.Run(ctx, macro, args)
		})
}

// =============================================================================
// HELPERS
// =============================================================================

// Resolve finds a document by ID, then by exact name.
func (h *Handler) Resolve(ctx context.Context, c entity.Collection, idOrName string) (entity.Document, error) {
	idOrName = strings.TrimSpace(idOrName)
	if idOrName == "" {
		return entity.Document{}, fmt.Errorf("%w: name or id is required", ErrValidation)
	}
	doc, err := h.store.Get(ctx, c, idOrName)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, entity.ErrNotFound) {
		return entity.Document{}, err
	}
	docs, err := h.store.Find(ctx, c, entity.Filter{ExactName: idOrName, Limit: 1})
	if err != nil {
		return entity.Document{}, err
	}
	if len(docs) == 0 {
		return entity.Document{}, fmt.Errorf("%w: %s %q", entity.ErrNotFound, c.Singular(), idOrName)
	}
	return docs[0], nil
}

func requireName(doc entity.Document) error {
	if strings.TrimSpace(doc.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return nil
}
