// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gameapi

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jeranaias/tabletop-assistant/internal/entity"
	"github.com/jeranaias/tabletop-assistant/internal/permission"
	"github.com/jeranaias/tabletop-assistant/internal/queue"
)

// Actor types.
const (
	ActorCharacter = "character"
	ActorNPC       = "npc"
	ActorVehicle   = "vehicle"

	// DefaultActorType is used when a new actor has no type.
	DefaultActorType = ActorNPC

	maxActorName = 50
)

// CreateOptions control actor creation.
type CreateOptions struct {
	// AllowDuplicates permits an actor whose name already exists
	AllowDuplicates bool
}

// DeleteOptions control actor deletion.
type DeleteOptions struct {
	// Force permits deleting player-owned characters
	Force bool
}

// ValidateActor checks name length and type. With partial set, missing
// fields are accepted.
func ValidateActor(name, typ string, partial bool) error {
	if !partial && name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if name != "" || !partial {
		if n := utf8.RuneCountInString(name); n < 1 || n > maxActorName {
			return fmt.Errorf("%w: name must be between 1 and %d characters", ErrValidation, maxActorName)
		}
	}
	if !partial && typ == "" {
		return fmt.Errorf("%w: type is required", ErrValidation)
	}
	switch typ {
	case "", ActorCharacter, ActorNPC, ActorVehicle:
	default:
		return fmt.Errorf("%w: type must be character, npc or vehicle", ErrValidation)
	}
	return nil
}

// CreateActor queues creation of an actor.
func (h *Handler) CreateActor(doc entity.Document, opts CreateOptions) (*queue.Handle, error) {
	doc.Collection = entity.Actors
	if doc.Type == "" {
		doc.Type = DefaultActorType
	}
	return h.enqueue(queue.KindCreate, entity.Actors, permission.CapCreateActor, "actor created", doc,
		func(ctx context.Context) (any, error) {
			if err := ValidateActor(doc.Name, doc.Type, false); err != nil {
				return nil, err
			}
			if !opts.AllowDuplicates {
				existing, err := h.store.Find(ctx, entity.Actors, entity.Filter{ExactName: doc.Name, Limit: 1})
				if err != nil {
					return nil, err
				}
				if len(existing) > 0 {
					return nil, fmt.Errorf("%w: actor %q already exists", ErrDuplicate, doc.Name)
				}
			}
			return h.store.Create(ctx, doc)
		})
}

// UpdateActor queues an actor update.
func (h *Handler) UpdateActor(id string, patch entity.Patch) (*queue.Handle, error) {
	return h.enqueue(queue.KindUpdate, entity.Actors, permission.CapUpdateActor, "actor updated", patch,
		func(ctx context.Context) (any, error) {
			var name, typ string
			if patch.Name != nil {
				name = *patch.Name
				if name == "" {
					return nil, fmt.Errorf("%w: name must be between 1 and %d characters", ErrValidation, maxActorName)
				}
			}
			if patch.Type != nil {
				typ = *patch.Type
			}
			if err := ValidateActor(name, typ, true); err != nil {
				return nil, err
			}
			return h.store.Update(ctx, entity.Actors, id, patch)
		})
}

// DeleteActor queues deletion of an actor. Player-owned characters need
// opts.Force.
func (h *Handler) DeleteActor(id string, opts DeleteOptions) (*queue.Handle, error) {
	return h.enqueue(queue.KindDelete, entity.Actors, permission.CapDeleteActor, "actor deleted", id,
		func(ctx context.Context) (any, error) {
			actor, err := h.store.Get(ctx, entity.Actors, id)
			if err != nil {
				return nil, err
			}
			if actor.Type == ActorCharacter && actor.PlayerOwned() && !opts.Force {
				return nil, fmt.Errorf("%w: %q needs confirmation to delete", ErrPlayerOwned, actor.Name)
			}
			if err := h.store.Delete(ctx, entity.Actors, id); err != nil {
				return nil, err
			}
			return actor, nil
		})
}
