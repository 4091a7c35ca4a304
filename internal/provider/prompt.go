// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"strings"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
	"github.com/jeranaias/tabletop-assistant/internal/util"
)

const (
	// promptTurns is the number of history turns sent to a model.
	promptTurns = 8

	// maxTurnLength caps each history turn sent to a model.
	maxTurnLength = 500

	// DefaultAssistantName labels assistant turns in the history.
	DefaultAssistantName = "AI Assistant"
)

// Role is a chat role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one provider-neutral chat message.
type Message struct {
	Role    Role
	Content string
}

// Prompt is a system prompt plus the messages to send.
type Prompt struct {
	System   string
	Messages []Message
}

// BuildPrompt assembles the prompt for text from cc. Turns spoken by
// assistantName or produced as mention replies are sent as assistant
// messages; every other turn is a user message.
func BuildPrompt(text string, cc conversation.Context, assistantName string) Prompt {
	if assistantName == "" {
		assistantName = DefaultAssistantName
	}
	p := Prompt{System: systemPrompt(cc.World)}

	recent := cc.Recent
	if len(recent) > promptTurns {
		recent = recent[len(recent)-promptTurns:]
	}
	for _, t := range recent {
		role := RoleUser
		content := t.Content
		if t.Speaker == assistantName || t.Kind == conversation.KindMentionReply {
			role = RoleAssistant
		} else if t.Speaker != "" {
			content = t.Speaker + ": " + content
		}
		p.Messages = append(p.Messages, Message{Role: role, Content: util.Truncate(content, maxTurnLength)})
	}

	speaker := cc.Speaker
	if speaker == "" {
		speaker = "User"
	}
	p.Messages = append(p.Messages, Message{
		Role:    RoleUser,
		Content: fmt.Sprintf("%s\n\n%s: %s", cc.World.Summary(), speaker, text),
	})
	return p
}

func systemPrompt(w conversation.World) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant for a tabletop role-playing game session. You help with rules, ")
	b.WriteString("mechanics, character creation and narration, and you can suggest changes to the game world.\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Be accurate about rules and say so when unsure.\n")
	b.WriteString("- Keep an engaging tone that fits the campaign.\n")
	b.WriteString("- Suggest dice rolls as [ROLL:formula], new content as [CREATE:type:name] and lookups as [SEARCH:type:term].\n\n")

	system := w.SystemName
	if system == "" {
		system = "D&D 5e"
	}
	scene := w.ActiveScene
	if scene == "" {
		scene = "not specified"
	}
	fmt.Fprintf(&b, "Current context:\n- System: %s\n- Scene: %s\n- Players: %d\n\n", system, scene, w.PlayerCount)
	b.WriteString("Answer as an experienced game master and helpful assistant.")
	return b.String()
}
