// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_FIFOEviction(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Append(Turn{Speaker: "gm", Content: fmt.Sprintf("msg %d", i)})
	}

	turns := h.Recent(0)
	require.Len(t, turns, 3)
	assert.Equal(t, "msg 2", turns[0].Content)
	assert.Equal(t, "msg 4", turns[2].Content)
	assert.Equal(t, 3, h.Limit())
}

func TestHistory_DefaultsAndFill(t *testing.T) {
	h := NewHistory(0)
	assert.Equal(t, DefaultHistoryLimit, h.Limit())

	h.Append(Turn{Speaker: "alice", Content: "hello"})
	turns := h.Recent(1)
	require.Len(t, turns, 1)
	assert.False(t, turns[0].Timestamp.IsZero())
	assert.Equal(t, KindOrdinary, turns[0].Kind)

	h.Clear()
	assert.Equal(t, 0, h.Len())
}

func TestHistory_ReadsDoNotAffectRetention(t *testing.T) {
	h := NewHistory(2)
	h.Append(Turn{Content: "a"})
	h.Append(Turn{Content: "b"})

	// Reading "a" repeatedly must not keep it alive.
	for i := 0; i < 5; i++ {
		_ = h.Recent(2)
	}
	h.Append(Turn{Content: "c"})

	turns := h.Recent(0)
	require.Len(t, turns, 2)
	assert.Equal(t, "b", turns[0].Content)
	assert.Equal(t, "c", turns[1].Content)
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	h := NewHistory(DefaultHistoryLimit)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h.Append(Turn{Speaker: fmt.Sprintf("p%d", g), Content: "x"})
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, DefaultHistoryLimit, h.Len())
}

func TestHistory_AppendKeepsTurnsTogether(t *testing.T) {
	h := NewHistory(400)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				q := fmt.Sprintf("q-%d-%d", g, i)
				h.Append(Turn{Speaker: "player", Content: q}, Turn{Speaker: "Sage", Content: "re " + q, Kind: KindMentionReply})
			}
		}(g)
	}
	wg.Wait()

	turns := h.Recent(0)
	require.Len(t, turns, 320)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, "re "+turns[i].Content, turns[i+1].Content)
		assert.Equal(t, KindOrdinary, turns[i].Kind)
		assert.Equal(t, KindMentionReply, turns[i+1].Kind)
	}
}

func TestIsDialogue(t *testing.T) {
	assert.True(t, IsDialogue("ic"))
	assert.True(t, IsDialogue("OOC"))
	assert.False(t, IsDialogue("other"))
	assert.False(t, IsDialogue(""))
	assert.False(t, IsDialogue("roll"))
}

func TestBuild(t *testing.T) {
	h := NewHistory(100)
	for i := 0; i < 15; i++ {
		h.Append(Turn{Speaker: "bob", Content: fmt.Sprintf("line %d", i)})
	}
	world := World{ActiveScene: "Golden Boar Tavern", PlayerCount: 4, SystemName: "D&D 5e"}

	ctx := Build(h, world, "alice", 0)
	assert.Equal(t, "alice", ctx.Speaker)
	assert.Equal(t, world, ctx.World)
	require.Len(t, ctx.Recent, DefaultContextTurns)
	assert.Equal(t, "line 5", ctx.Recent[0].Content)
	assert.Equal(t, "line 14", ctx.Recent[9].Content)

	ctx = Build(h, world, "", 3)
	assert.Equal(t, "Unknown", ctx.Speaker)
	assert.Len(t, ctx.Recent, 3)
	assert.Contains(t, ctx.Transcript(), "bob: line 14\n")

	// Build does not modify the history.
	assert.Equal(t, 15, h.Len())
}

func TestBuild_NilHistory(t *testing.T) {
	ctx := Build(nil, World{}, "alice", 5)
	assert.Empty(t, ctx.Recent)
	assert.Equal(t, "", ctx.Transcript())
}

func TestWorldSummary(t *testing.T) {
	w := World{ActiveScene: "Dark Forest", PlayerCount: 3, SystemName: "PF2e"}
	assert.Equal(t, "System: PF2e | Scene: Dark Forest | Players: 3", w.Summary())
	assert.Equal(t, "Players: 0", World{}.Summary())
}
