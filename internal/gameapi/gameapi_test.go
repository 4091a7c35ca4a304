// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gameapi

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/tabletop-assistant/internal/entity"
	"github.com/jeranaias/tabletop-assistant/internal/permission"
	"github.com/jeranaias/tabletop-assistant/internal/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// FIXTURES
// =============================================================================

type grants struct {
	mu   sync.Mutex
	caps map[permission.Capability]bool
}

func allow(caps ...permission.Capability) *grants {
	g := &grants{caps: make(map[permission.Capability]bool)}
	for _, c := range caps {
		g.caps[c] = true
	}
	return g
}

func (g *grants) Check(c permission.Capability) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.caps[c]
}

func (g *grants) set(c permission.Capability, v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.caps[c] = v
}

// countingStore records Create calls.
type countingStore struct {
	entity.Store
	creates atomic.Int32
}

func (s *countingStore) Create(ctx context.Context, doc entity.Document) (entity.Document, error) {
	s.creates.Add(1)
	return s.Store.Create(ctx, doc)
}

type fixedRoller int

func (f fixedRoller) Roll(int) int { return int(f) }

func newHandler(t *testing.T, perms Checker) (*Handler, *countingStore) {
	t.Helper()
	store := &countingStore{Store: entity.NewMemoryStore()}
	q := queue.New(queue.WithPollInterval(5 * time.Millisecond))
	q.Start()
	t.Cleanup(q.Stop)
	return New(store, perms, q, WithRoller(fixedRoller(4))), store
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func everything() *grants {
	g := allow()
	for c := range permission.LevelFull.Capabilities() {
		g.caps[c] = true
	}
	return g
}

// =============================================================================
// PERMISSIONS
// =============================================================================

func TestCreateActor_DeniedNeverTouchesStore(t *testing.T) {
	h, store := newHandler(t, allow())
	ctx := waitCtx(t)

	var handles []*queue.Handle
	for _, name := range []string{"A", "B", "C"} {
		handle, err := h.CreateActor(entity.Document{Name: name}, CreateOptions{})
		require.NoError(t, err)
		handles = append(handles, handle)
	}
	for _, handle := range handles {
		_, err := handle.Wait(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, permission.ErrInsufficientPermission)
		assert.ErrorIs(t, err, queue.ErrOperationFailed)
	}
	assert.Zero(t, store.creates.Load())
}

func TestCapabilityCheckedAtRunTime(t *testing.T) {
	perms := allow(permission.CapCreateActor)
	h, store := newHandler(t, perms)
	ctx := waitCtx(t)

	perms.set(permission.CapCreateActor, false)
	handle, err := h.CreateActor(entity.Document{Name: "Late"}, CreateOptions{})
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, permission.ErrInsufficientPermission)
	assert.Zero(t, store.creates.Load())
}

func TestReadsRequireQueryCapability(t *testing.T) {
	h, _ := newHandler(t, allow(permission.CapQueryActors))
	ctx := waitCtx(t)

	_, err := h.QueryActors(ctx, entity.Filter{})
	assert.NoError(t, err)

	_, err = h.Query(ctx, entity.Scenes, entity.Filter{})
	assert.ErrorIs(t, err, permission.ErrInsufficientPermission)

	_, err = h.RollDice("1d20")
	assert.ErrorIs(t, err, permission.ErrInsufficientPermission)

	_, err = h.Query(ctx, entity.Collection("tokens"), entity.Filter{})
	assert.ErrorIs(t, err, entity.ErrUnknownCollection)
}

// =============================================================================
// ACTORS
// =============================================================================

func TestCreateActor(t *testing.T) {
	h, _ := newHandler(t, everything())
	ctx := waitCtx(t)

	handle, err := h.CreateActor(entity.Document{Name: "Goblin"}, CreateOptions{})
	require.NoError(t, err)
	doc, err := Wait[entity.Document](ctx, handle)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, ActorNPC, doc.Type)
	assert.Equal(t, entity.Actors, doc.Collection)
}

func TestCreateActor_Validation(t *testing.T) {
	h, _ := newHandler(t, everything())
	ctx := waitCtx(t)

	long := ""
	for i := 0; i < 51; i++ {
		long += "x"
	}
	cases := []entity.Document{
		{Name: ""},
		{Name: long},
		{Name: "Dragon", Type: "monster"},
	}
	for _, doc := range cases {
		handle, err := h.CreateActor(doc, CreateOptions{})
		require.NoError(t, err)
		_, err = handle.Wait(ctx)
		assert.ErrorIs(t, err, ErrValidation, "doc %+v", doc)
	}
}

func TestCreateActor_Duplicates(t *testing.T) {
	h, store := newHandler(t, everything())
	ctx := waitCtx(t)

	first, err := h.CreateActor(entity.Document{Name: "Bob"}, CreateOptions{})
	require.NoError(t, err)
	_, err = first.Wait(ctx)
	require.NoError(t, err)

	dup, err := h.CreateActor(entity.Document{Name: "bob"}, CreateOptions{})
	require.NoError(t, err)
	_, err = dup.Wait(ctx)
	assert.ErrorIs(t, err, ErrDuplicate)

	allowed, err := h.CreateActor(entity.Document{Name: "Bob"}, CreateOptions{AllowDuplicates: true})
	require.NoError(t, err)
	_, err = allowed.Wait(ctx)
	assert.NoError(t, err)
	assert.EqualValues(t, 2, store.creates.Load())
}

func TestUpdateActor(t *testing.T) {
	h, _ := newHandler(t, everything())
	ctx := waitCtx(t)

	handle, err := h.CreateActor(entity.Document{Name: "Guard"}, CreateOptions{})
	require.NoError(t, err)
	doc, err := Wait[entity.Document](ctx, handle)
	require.NoError(t, err)

	name := "Captain"
	handle, err = h.UpdateActor(doc.ID, entity.Patch{Name: &name, Data: map[string]any{"hp": 12}})
	require.NoError(t, err)
	updated, err := Wait[entity.Document](ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "Captain", updated.Name)
	assert.EqualValues(t, 12, updated.Data["hp"])

	bad := "spaceship"
	handle, err = h.UpdateActor(doc.ID, entity.Patch{Type: &bad})
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteActor_PlayerCharacterNeedsForce(t *testing.T) {
	h, _ := newHandler(t, everything())
	ctx := waitCtx(t)

	handle, err := h.CreateActor(entity.Document{Name: "Aria", Type: ActorCharacter, Owner: "alice"}, CreateOptions{})
	require.NoError(t, err)
	doc, err := Wait[entity.Document](ctx, handle)
	require.NoError(t, err)

	handle, err = h.DeleteActor(doc.ID, DeleteOptions{})
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, ErrPlayerOwned)

	handle, err = h.DeleteActor(doc.ID, DeleteOptions{Force: true})
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	require.NoError(t, err)

	_, err = h.Store().Get(ctx, entity.Actors, doc.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

// =============================================================================
// CONTENT
// =============================================================================

func TestCreateItem_EmbeddedInActor(t *testing.T) {
	h, _ := newHandler(t, everything())
	ctx := waitCtx(t)

	handle, err := h.CreateActor(entity.Document{Name: "Knight"}, CreateOptions{})
	require.NoError(t, err)
	actor, err := Wait[entity.Document](ctx, handle)
	require.NoError(t, err)

	handle, err = h.CreateItem(entity.Document{Name: "Longsword"}, actor.ID)
	require.NoError(t, err)
	item, err := Wait[entity.Document](ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, actor.ID, item.ParentID)

	handle, err = h.CreateItem(entity.Document{Name: "Shield"}, "missing")
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	rename := "Rusty Longsword"
	handle, err = h.UpdateItem(item.ID, entity.Patch{Name: &rename}, "other-actor")
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestScenes_CreateAndActivateByName(t *testing.T) {
	h, _ := newHandler(t, everything())
	ctx := waitCtx(t)

	for _, name := range []string{"Tavern", "Forest"} {
		handle, err := h.CreateScene(entity.Document{Name: name})
		require.NoError(t, err)
		_, err = handle.Wait(ctx)
		require.NoError(t, err)
	}

	handle, err := h.ActivateScene("forest")
	require.NoError(t, err)
	scene, err := Wait[entity.Document](ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "Forest", scene.Name)
	assert.True(t, scene.Active)

	world := h.World(ctx, "D&D 5e")
	assert.Equal(t, "Forest", world.ActiveScene)
	assert.Equal(t, "D&D 5e", world.SystemName)
}

func TestMacros_CreateAndExecute(t *testing.T) {
	h, _ := newHandler(t, everything())
	ctx := waitCtx(t)

	handle, err := h.CreateMacro(entity.Document{Name: "NoCommand"})
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, ErrValidation)

	handle, err = h.CreateMacro(entity.Document{Name: "Attack", Data: map[string]any{"command": "roll {{1}}"}})
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	require.NoError(t, err)

	handle, err = h.ExecuteMacro("Attack", []string{"2d6+1"})
	require.NoError(t, err)
	out, err := Wait[string](ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "Attack: 2d6[4,4] + 1 = 9", out)

	handle, err = h.ExecuteMacro("Missing", nil)
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestCreateJournal(t *testing.T) {
	h, _ := newHandler(t, everything())
	ctx := waitCtx(t)

	handle, err := h.CreateJournal(entity.Document{Name: "Session 1", Data: map[string]any{"content": "It began."}})
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	require.NoError(t, err)

	doc, err := h.FindByName(ctx, entity.Journals, "session 1")
	require.NoError(t, err)
	assert.Equal(t, "It began.", doc.Data["content"])

	stats, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Collections[entity.Journals])
}

func TestRollDice(t *testing.T) {
	h, _ := newHandler(t, everything())
	res, err := h.RollDice("1d20+5")
	require.NoError(t, err)
	assert.Equal(t, 9, res.Total)
}

// =============================================================================
// PAYLOADS AND MACROS
// =============================================================================

func TestParsePayload(t *testing.T) {
	assert.Equal(t, map[string]any{"name": "Goblin King"}, ParsePayload("Goblin King"))
	assert.Equal(t, map[string]any{"name": "[1,2]"}, ParsePayload("[1,2]"))

	m := ParsePayload(`{"name":"Orc","type":"npc","hp":15,"actorId":"a1"}`)
	doc := DocumentFromMap(entity.Actors, m)
	assert.Equal(t, "Orc", doc.Name)
	assert.Equal(t, "npc", doc.Type)
	assert.Equal(t, "a1", doc.ParentID)
	assert.Equal(t, map[string]any{"hp": float64(15)}, doc.Data)
}

func TestDefaultMacroRunner(t *testing.T) {
	r := &DefaultMacroRunner{Roller: fixedRoller(3)}
	macro := entity.Document{Name: "Greet", Data: map[string]any{"command": "Hello {{args}}!"}}

	out, err := r.Run(context.Background(), macro, []string{"brave", "heroes"})
	require.NoError(t, err)
	assert.Equal(t, "Hello brave heroes!", out)

	_, err = r.Run(context.Background(), entity.Document{Name: "Empty"}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	bad := entity.Document{Name: "Bad", Data: map[string]any{"command": "roll 0d6"}}
	_, err = r.Run(context.Background(), bad, nil)
	assert.Error(t, err)
}
