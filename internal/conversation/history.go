// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/tabletop-assistant/internal/util"
)

// DefaultHistoryLimit is the number of turns retained by a History.
const DefaultHistoryLimit = 100

// Kind classifies a turn.
type Kind string

const (
	// KindCommand is text sent to the assistant through an /ai command
	KindCommand Kind = "command"

	// KindMentionReply is a reply produced by a conversation provider
	KindMentionReply Kind = "mention-reply"

	// KindOrdinary is regular chat that was kept for context
	KindOrdinary Kind = "ordinary"
)

// Chat message types that count as dialogue.
const (
	TypeInCharacter    = "ic"
	TypeOutOfCharacter = "ooc"
)

// Turn is one entry in the rolling history.
type Turn struct {
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`

	// MessageType is the host chat type ("ic", "ooc", ...), if known
	MessageType string `json:"message_type,omitempty"`
}

// IsDialogue reports whether a chat message type is in-character or
// out-of-character dialogue.
func IsDialogue(messageType string) bool {
	switch strings.ToLower(strings.TrimSpace(messageType)) {
	case TypeInCharacter, TypeOutOfCharacter:
		return true
	}
	return false
}

// History is a concurrency-safe bounded buffer of turns.
type History struct {
	mu    sync.RWMutex
	turns *util.Ring[Turn]
	now   func() time.Time
}

// NewHistory returns a history keeping at most limit turns. A non-positive
// limit uses DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		turns: util.NewRing[Turn](limit),
		now:   time.Now,
	}
}

// Append adds turns in order under one lock, evicting the oldest turns
// when full. Turns appended together are never interleaved with another
// caller's. A zero timestamp is set to the current time.
func (h *History) Append(turns ...Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = h.now()
		}
		if t.Kind == "" {
			t.Kind = KindOrdinary
		}
		h.turns.Push(t)
	}
}

// Recent returns the newest n turns, oldest first. A non-positive n
// returns every turn.
func (h *History) Recent(n int) []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 {
		return h.turns.Items()
	}
	return h.turns.Last(n)
}

// Len returns the number of stored turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.turns.Len()
}

// Limit returns the capacity.
func (h *History) Limit() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.turns.Cap()
}

// Clear removes every turn.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns.Clear()
}
