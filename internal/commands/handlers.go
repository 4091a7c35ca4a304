// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
	"github.com/jeranaias/tabletop-assistant/internal/entity"
	"github.com/jeranaias/tabletop-assistant/internal/gameapi"
	"github.com/jeranaias/tabletop-assistant/internal/permission"
	"github.com/jeranaias/tabletop-assistant/internal/queue"
	"github.com/jeranaias/tabletop-assistant/internal/session"
)

// =============================================================================
// BUILT-IN DEPENDENCIES
// =============================================================================

// Builtins holds what the built-in commands operate on.
type Builtins struct {
	// Game performs entity reads and queued mutations
	Game *gameapi.Handler

	// Permissions backs "status" and "config permission-level"
	Permissions *permission.Store

	// Session is reported by "status" (optional)
	Session *session.Manager

	// WaitTimeout bounds how long a command waits for its queued
	// operation. Zero means DefaultWaitTimeout.
	WaitTimeout time.Duration
}

// DefaultWaitTimeout is how long commands wait for queued operations.
const DefaultWaitTimeout = 10 * time.Second

// DefaultRollFlavor labels rolls made without a reason.
const DefaultRollFlavor = "Roll requested by the AI"

// searchLimit caps search results shown in chat.
const searchLimit = 20

var createTypes = []string{"actor", "item", "scene", "journal", "macro"}

// builtins binds the dependencies to a router.
type builtins struct {
	Builtins
	router *Router
}

// RegisterBuiltins registers help, status, chat, roll, create, search,
// macro, scene and config on the router's registry. Game and Permissions
// are required.
func RegisterBuiltins(r *Router, deps Builtins) error {
	if deps.Game == nil || deps.Permissions == nil {
		return fmt.Errorf("%w: builtins need a game handler and a permission store", ErrInvalidCommand)
	}
	if deps.WaitTimeout <= 0 {
		deps.WaitTimeout = DefaultWaitTimeout
	}
	b := &builtins{Builtins: deps, router: r}

	for _, cmd := range b.commands() {
		if err := r.Registry().Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (b *builtins) commands() []*Command {
	return []*Command{
		{
			Name:        "help",
			Capability:  permission.CapSendMessage,
			Usage:       "help [command]",
			Description: "Show the commands you can use",
			Category:    "General",
			Args:        []ArgDef{{Name: "command"}},
			Handler:     b.handleHelp,
		},
		{
			Name:        "status",
			Capability:  permission.CapSendMessage,
			Usage:       "status",
			Description: "Show assistant, permission and queue status",
			Category:    "General",
			Handler:     b.handleStatus,
		},
		{
			Name:        "chat",
			Capability:  permission.CapSendMessage,
			Usage:       "chat <message>",
			Description: "Talk to the assistant",
			Category:    "General",
			Args:        []ArgDef{{Name: "message", Required: true}},
			Handler:     b.handleChat,
		},
		{
			Name:        "roll",
			Capability:  permission.CapRollDice,
			Usage:       "roll <formula> [reason]",
			Description: "Roll dice, e.g. 1d20+5",
			Category:    "Game",
			Args:        []ArgDef{{Name: "formula", Required: true}, {Name: "reason"}},
			Handler:     b.handleRoll,
		},
		{
			Name:        "create",
			Capability:  permission.CapCreateActor,
			Usage:       "create <type> <data>",
			Description: "Create an actor, item, scene, journal entry or macro",
			Category:    "World",
			Args:        []ArgDef{{Name: "type", Required: true, Values: createTypes}, {Name: "data", Required: true}},
			Handler:     b.handleCreate,
		},
		{
			Name:        "search",
			Capability:  permission.CapQueryActors,
			Usage:       "search <type> [filters]",
			Description: "Search actors, items, scenes, journals or macros by name",
			Category:    "World",
			Args:        []ArgDef{{Name: "type", Required: true, Values: collectionNames()}, {Name: "filters"}},
			Handler:     b.handleSearch,
		},
		{
			Name:        "macro",
			Capability:  permission.CapExecuteMacro,
			Usage:       "macro <name> [args]",
			Description: "Run a macro",
			Category:    "Game",
			Args:        []ArgDef{{Name: "name", Required: true}, {Name: "args"}},
			Handler:     b.handleMacro,
		},
		{
			Name:        "scene",
			Capability:  permission.CapCreateScene,
			Usage:       "scene <action> [params]",
			Description: "Activate, create or list scenes",
			Category:    "World",
			Args:        []ArgDef{{Name: "action", Required: true, Values: []string{"activate", "create", "list"}}, {Name: "params"}},
			Handler:     b.handleScene,
		},
		{
			Name:        "config",
			Capability:  permission.CapModifySettings,
			Usage:       "config <option> <value>",
			Description: "Change the provider or permission level",
			Category:    "Settings",
			Args:        []ArgDef{{Name: "option", Required: true, Values: []string{"provider", "permission-level"}}, {Name: "value", Required: true}},
			Handler:     b.handleConfig,
		},
	}
}

// =============================================================================
// GENERAL
// =============================================================================

func (b *builtins) handleHelp(_ context.Context, inv *Invocation) (string, error) {
	prefix := b.router.Prefix()
	if name := inv.Arg(0); name != "" {
		cmd := b.router.Registry().Get(name)
		if cmd == nil {
			return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "**%s %s**\n", prefix, cmd.Name)
		fmt.Fprintf(&sb, "%s\n", cmd.Description)
		fmt.Fprintf(&sb, "Usage: `%s %s`\n", prefix, cmd.Usage)
		fmt.Fprintf(&sb, "Required permission: %s", cmd.Capability)
		return sb.String(), nil
	}

	allowed := b.router.Registry().Allowed(b.router.perms.Check)
	var sb strings.Builder
	sb.WriteString("**Available commands**\n")
	for _, cmd := range allowed {
		fmt.Fprintf(&sb, "- `%s %s` - %s\n", prefix, cmd.Usage, cmd.Description)
	}
	if token := b.router.MentionToken(); token != "" {
		fmt.Fprintf(&sb, "\nYou can also mention %s in any message to talk to me.", token)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *builtins) handleStatus(ctx context.Context, _ *Invocation) (string, error) {
	var sb strings.Builder
	sb.WriteString("**Assistant status**\n")

	if b.Session != nil {
		st := b.Session.GetStatus()
		active := "active"
		if st.IsExpired {
			active = "idle"
		}
		fmt.Fprintf(&sb, "- Assistant: %s (%s, session %s)\n", st.AssistantName, active, st.SessionID)
		fmt.Fprintf(&sb, "- Last activity: %s ago, running for %s\n",
			session.FormatDuration(st.IdleTime), session.FormatDuration(st.Duration))
		fmt.Fprintf(&sb, "- Messages: %d commands, %d mentions, %d passive\n", st.Commands, st.Mentions, st.Passive)
	}

	ps := b.Permissions.Stats()
	fmt.Fprintf(&sb, "- Permission level: %s (%d active, %d temporary)\n", ps.Level, ps.Active, ps.Temporary)

	gs, err := b.Game.Stats(ctx)
	if err != nil {
		return "", err
	}
	processing := "idle"
	if gs.Processing {
		processing = "processing"
	}
	fmt.Fprintf(&sb, "- Queue: %d pending, %s\n", gs.QueueLength, processing)

	counts := make([]string, 0, len(gs.Collections))
	for _, c := range entity.Collections() {
		counts = append(counts, fmt.Sprintf("%d %s", gs.Collections[c], c))
	}
	fmt.Fprintf(&sb, "- World: %s\n", strings.Join(counts, ", "))

	current := "none"
	if p := b.router.Providers(); p != nil && p.CurrentName() != "" {
		current = p.CurrentName()
	}
	fmt.Fprintf(&sb, "- Provider: %s", current)
	return sb.String(), nil
}

// handleChat returns the conversation reply. Provider failures are
// rendered as text rather than errors so the reply reads the same as a
// mention.
func (b *builtins) handleChat(ctx context.Context, inv *Invocation) (string, error) {
	if inv.RawArgs == "" {
		return "", usageError(b.router.Prefix(), "chat <message>")
	}
	resp := b.router.Converse(ctx, inv.RawArgs, inv.Message, conversation.KindCommand)
	return resp.Text, nil
}

// =============================================================================
// GAME
// =============================================================================

func (b *builtins) handleRoll(_ context.Context, inv *Invocation) (string, error) {
	formula := inv.Arg(0)
	if formula == "" {
		return "", usageError(b.router.Prefix(), "roll <formula> [reason]")
	}
	res, err := b.Game.RollDice(formula)
	if err != nil {
		return "", err
	}
	flavor := inv.Rest(1)
	if flavor == "" {
		flavor = DefaultRollFlavor
	}
	return fmt.Sprintf("%s = %d (%s)\n%s", res.Formula, res.Total, flavor, res.Detail()), nil
}

func (b *builtins) handleMacro(ctx context.Context, inv *Invocation) (string, error) {
	name := inv.Arg(0)
	if name == "" {
		return "", usageError(b.router.Prefix(), "macro <name> [args]")
	}
	handle, err := b.Game.ExecuteMacro(name, inv.Args[1:])
	if err != nil {
		return "", err
	}
	out, err := b.wait(ctx, handle)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(out), nil
}

// =============================================================================
// WORLD
// =============================================================================

func (b *builtins) handleCreate(ctx context.Context, inv *Invocation) (string, error) {
	usage := "create <type> <data>"
	if len(inv.Args) < 2 {
		return "", usageError(b.router.Prefix(), usage)
	}
	c, err := entity.ParseCollection(inv.Arg(0))
	if err != nil {
		return "", fmt.Errorf("unknown type %q, expected one of: %s", inv.Arg(0), strings.Join(createTypes, ", "))
	}
	raw := strings.TrimSpace(strings.TrimPrefix(inv.RawArgs, inv.Arg(0)))
	doc := gameapi.DocumentFromMap(c, gameapi.ParsePayload(raw))

	var handle *queue.Handle
	switch c {
	case entity.Actors:
		handle, err = b.Game.CreateActor(doc, gameapi.CreateOptions{})
	case entity.Items:
		handle, err = b.Game.CreateItem(doc, doc.ParentID)
	case entity.Scenes:
		handle, err = b.Game.CreateScene(doc)
	case entity.Journals:
		handle, err = b.Game.CreateJournal(doc)
	case entity.Macros:
		handle, err = b.Game.CreateMacro(doc)
	}
	if err != nil {
		return "", err
	}

	return b.created(ctx, c, handle)
}

func (b *builtins) created(ctx context.Context, c entity.Collection, handle *queue.Handle) (string, error) {
	wctx, cancel := context.WithTimeout(ctx, b.WaitTimeout)
	defer cancel()
	doc, err := gameapi.Wait[entity.Document](wctx, handle)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Queued creation of %s (operation %s).", c.Singular(), handle.ID()), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created %s \"%s\" (%s).", c.Singular(), doc.Name, doc.ID), nil
}

func (b *builtins) handleSearch(ctx context.Context, inv *Invocation) (string, error) {
	if len(inv.Args) == 0 {
		return "", usageError(b.router.Prefix(), "search <type> [filters]")
	}
	c, err := entity.ParseCollection(inv.Arg(0))
	if err != nil {
		return "", fmt.Errorf("unknown type %q, expected one of: %s", inv.Arg(0), strings.Join(collectionNames(), ", "))
	}
	docs, err := b.Game.Query(ctx, c, entity.Filter{Name: inv.Rest(1), Limit: searchLimit})
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return fmt.Sprintf("No %s found.", c), nil
	}
	return listDocuments(fmt.Sprintf("Found %d %s:", len(docs), c), docs), nil
}

func (b *builtins) handleScene(ctx context.Context, inv *Invocation) (string, error) {
	usage := "scene <activate|create|list> [params]"
	action := strings.ToLower(inv.Arg(0))
	param := inv.Rest(1)

	switch action {
	case "list":
		docs, err := b.Game.Query(ctx, entity.Scenes, entity.Filter{})
		if err != nil {
			return "", err
		}
		if len(docs) == 0 {
			return "No scenes found.", nil
		}
		return listDocuments("Scenes:", docs), nil

	case "activate":
		if param == "" {
			return "", usageError(b.router.Prefix(), "scene activate <name>")
		}
		handle, err := b.Game.ActivateScene(param)
		if err != nil {
			return "", err
		}
		out, err := b.wait(ctx, handle)
		if err != nil {
			return "", err
		}
		if doc, ok := out.(entity.Document); ok {
			return fmt.Sprintf("Scene \"%s\" is now active.", doc.Name), nil
		}
		return "Scene activation queued.", nil

	case "create":
		if param == "" {
			return "", usageError(b.router.Prefix(), "scene create <name>")
		}
		raw := strings.TrimSpace(strings.TrimPrefix(inv.RawArgs, inv.Arg(0)))
		doc := gameapi.DocumentFromMap(entity.Scenes, gameapi.ParsePayload(raw))
		handle, err := b.Game.CreateScene(doc)
		if err != nil {
			return "", err
		}
		return b.created(ctx, entity.Scenes, handle)
	}
	return "", usageError(b.router.Prefix(), usage)
}

// =============================================================================
// SETTINGS
// =============================================================================

func (b *builtins) handleConfig(_ context.Context, inv *Invocation) (string, error) {
	option := strings.ToLower(inv.Arg(0))
	value := inv.Rest(1)
	if option == "" || value == "" {
		return "", usageError(b.router.Prefix(), "config <provider|permission-level> <value>")
	}

	switch option {
	case "provider":
		providers := b.router.Providers()
		if providers == nil {
			return "", errors.New("no providers are registered")
		}
		if err := providers.Use(value); err != nil {
			return "", err
		}
		return fmt.Sprintf("AI provider set to %s.", providers.CurrentName()), nil

	case "permission-level", "permissions", "level":
		if err := b.Permissions.SetLevel(value, inv.Message.Speaker); err != nil {
			return "", err
		}
		return fmt.Sprintf("Permission level set to %s.", b.Permissions.Level()), nil
	}
	return "", fmt.Errorf("unknown option %q, expected provider or permission-level", option)
}

// =============================================================================
// HELPERS
// =============================================================================

func (b *builtins) wait(ctx context.Context, handle *queue.Handle) (any, error) {
	wctx, cancel := context.WithTimeout(ctx, b.WaitTimeout)
	defer cancel()
	return handle.Wait(wctx)
}

func usageError(prefix, usage string) error {
	return fmt.Errorf("usage: %s %s", prefix, usage)
}

func collectionNames() []string {
	cols := entity.Collections()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = string(c)
	}
	sort.Strings(names)
	return names
}

func listDocuments(title string, docs []entity.Document) string {
	var sb strings.Builder
	sb.WriteString(title)
	for _, d := range docs {
		sb.WriteString("\n- ")
		sb.WriteString(d.Name)
		var tags []string
		if d.Type != "" {
			tags = append(tags, d.Type)
		}
		if d.Active {
			tags = append(tags, "active")
		}
		if len(tags) > 0 {
			fmt.Fprintf(&sb, " (%s)", strings.Join(tags, ", "))
		}
	}
	return sb.String()
}
