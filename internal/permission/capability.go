// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Capability is a named permission flag.
type Capability string

// =============================================================================
// CAPABILITIES
// =============================================================================

const (
	// Chat and queries
	CapSendMessage     Capability = "send-message"
	CapSendWhisper     Capability = "send-whisper"
	CapRollDice        Capability = "roll-dice"
	CapQueryActors     Capability = "query-actors"
	CapQueryItems      Capability = "query-items"
	CapQueryScenes     Capability = "query-scenes"
	CapQueryJournal    Capability = "query-journal"
	CapQueryMacros     Capability = "query-macros"
	CapQueryTables     Capability = "query-tables"
	CapQueryPlaylists  Capability = "query-playlists"
	CapQueryCompendium Capability = "query-compendium"
	CapViewDocuments   Capability = "view-documents"

	// Content editing
	CapCreateItem           Capability = "create-item"
	CapUpdateItem           Capability = "update-item"
	CapDeleteItem           Capability = "delete-item"
	CapCreateJournal        Capability = "create-journal"
	CapUpdateJournal        Capability = "update-journal"
	CapDeleteJournal        Capability = "delete-journal"
	CapCreateMacro          Capability = "create-macro"
	CapUpdateMacro          Capability = "update-macro"
	CapExecuteMacro         Capability = "execute-macro"
	CapUpdateActor          Capability = "update-actor"
	CapImportFromCompendium Capability = "import-from-compendium"

	// World manipulation
	CapCreateActor     Capability = "create-actor"
	CapDeleteActor     Capability = "delete-actor"
	CapCreateScene     Capability = "create-scene"
	CapUpdateScene     Capability = "update-scene"
	CapDeleteScene     Capability = "delete-scene"
	CapActivateScene   Capability = "activate-scene"
	CapCreateRollTable Capability = "create-roll-table"
	CapUpdateRollTable Capability = "update-roll-table"
	CapDeleteRollTable Capability = "delete-roll-table"
	CapRollTable       Capability = "roll-table"
	CapCreatePlaylist  Capability = "create-playlist"
	CapUpdatePlaylist  Capability = "update-playlist"
	CapDeletePlaylist  Capability = "delete-playlist"
	CapPlayAudio       Capability = "play-audio"
	CapCreateToken     Capability = "create-token"
	CapUpdateToken     Capability = "update-token"
	CapDeleteToken     Capability = "delete-token"
	CapManageCombat    Capability = "manage-combat"

	// Administration
	CapManageUsers          Capability = "manage-users"
	CapModifySettings       Capability = "modify-settings"
	CapManageModules        Capability = "manage-modules"
	CapDeleteAnyDocument    Capability = "delete-any-document"
	CapExecuteArbitraryCode Capability = "execute-arbitrary-code"
	CapModifyPermissions    Capability = "modify-permissions"
	CapFilesystemAccess     Capability = "filesystem-access"
	CapNetworkAccess        Capability = "network-access"
)

// dangerous capabilities always require manual approval.
var dangerous = map[Capability]bool{
	CapDeleteAnyDocument:    true,
	CapExecuteArbitraryCode: true,
	CapModifySettings:       true,
	CapManageUsers:          true,
	CapFilesystemAccess:     true,
	CapNetworkAccess:        true,
}

// basic capabilities may be auto-approved on request.
var basic = map[Capability]bool{
	CapRollDice:      true,
	CapSendMessage:   true,
	CapQueryActors:   true,
	CapQueryItems:    true,
	CapQueryScenes:   true,
	CapViewDocuments: true,
}

// aliases maps legacy names onto the canonical capability.
var aliases = map[string]Capability{
	"access-file-system": CapFilesystemAccess,
	"file-system-access": CapFilesystemAccess,
}

// known is filled from the level tiers in level.go.
var known = map[Capability]bool{}

// Known reports whether c is part of the closed capability set.
func (c Capability) Known() bool {
	return known[c]
}

// Dangerous reports whether c requires manual approval.
func (c Capability) Dangerous() bool {
	return dangerous[c]
}

// Basic reports whether c may be auto-approved.
func (c Capability) Basic() bool {
	return basic[c]
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability resolves a capability name. Both the canonical
// kebab-case form and camelCase ("createActor") are accepted.
func ParseCapability(name string) (Capability, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty capability", ErrInvalidArgument)
	}
	key := toKebab(name)
	if c, ok := aliases[key]; ok {
		return c, nil
	}
	c := Capability(key)
	if !c.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, name)
	}
	return c, nil
}

// All returns every known capability, sorted by name.
func All() []Capability {
	out := make([]Capability, 0, len(known))
	for c := range known {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// toKebab converts "createActor" or "Create_Actor" to "create-actor".
func toKebab(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		switch {
		case r == '_' || r == ' ' || r == '-':
			if b.Len() > 0 {
				b.WriteByte('-')
			}
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}
