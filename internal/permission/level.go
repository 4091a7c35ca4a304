// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"fmt"
	"strings"
)

// Level is an ordered permission tier.
type Level int

const (
	LevelNone Level = iota
	LevelBasic
	LevelStandard
	LevelAdvanced
	LevelFull
)

// LevelInfo describes a level for display.
type LevelInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Rank        int    `json:"rank"`
}

type tier struct {
	info LevelInfo
	adds []Capability
}

// tiers lists each level with the capabilities it adds over the one below.
var tiers = []tier{
	{
		info: LevelInfo{Key: "NONE", Name: "None", Description: "No permissions"},
	},
	{
		info: LevelInfo{Key: "BASIC", Name: "Basic", Description: "Read-only queries, chat and dice"},
		adds: []Capability{
			CapSendMessage, CapSendWhisper, CapRollDice,
			CapQueryActors, CapQueryItems, CapQueryScenes, CapQueryJournal,
			CapQueryMacros, CapQueryTables, CapQueryPlaylists, CapQueryCompendium,
			CapViewDocuments,
		},
	},
	{
		info: LevelInfo{Key: "STANDARD", Name: "Standard", Description: "Create and edit basic content"},
		adds: []Capability{
			CapCreateItem, CapUpdateItem, CapDeleteItem,
			CapCreateJournal, CapUpdateJournal, CapDeleteJournal,
			CapCreateMacro, CapUpdateMacro, CapExecuteMacro,
			CapUpdateActor, CapImportFromCompendium,
		},
	},
	{
		info: LevelInfo{Key: "ADVANCED", Name: "Advanced", Description: "Full content manipulation"},
		adds: []Capability{
			CapCreateActor, CapDeleteActor,
			CapCreateScene, CapUpdateScene, CapDeleteScene, CapActivateScene,
			CapCreateRollTable, CapUpdateRollTable, CapDeleteRollTable, CapRollTable,
			CapCreatePlaylist, CapUpdatePlaylist, CapDeletePlaylist, CapPlayAudio,
			CapCreateToken, CapUpdateToken, CapDeleteToken, CapManageCombat,
		},
	},
	{
		info: LevelInfo{Key: "FULL", Name: "Full", Description: "Every permission, use with care"},
		adds: []Capability{
			CapManageUsers, CapModifySettings, CapManageModules,
			CapDeleteAnyDocument, CapExecuteArbitraryCode, CapModifyPermissions,
			CapFilesystemAccess, CapNetworkAccess,
		},
	},
}

func init() {
	for i := range tiers {
		tiers[i].info.Rank = i
		for _, c := range tiers[i].adds {
			known[c] = true
		}
	}
}

func (l Level) valid() bool {
	return l >= LevelNone && l <= LevelFull
}

// String returns the level key, e.g. "BASIC".
func (l Level) String() string {
	if !l.valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return tiers[l].info.Key
}

// Info returns the display description of l.
func (l Level) Info() LevelInfo {
	if !l.valid() {
		return LevelInfo{Key: l.String(), Rank: int(l)}
	}
	return tiers[l].info
}

// Capabilities returns the cumulative capability set of l.
func (l Level) Capabilities() map[Capability]bool {
	out := make(map[Capability]bool)
	for i := LevelNone; i <= l && i.valid(); i++ {
		for _, c := range tiers[i].adds {
			out[c] = true
		}
	}
	return out
}

// Includes reports whether c belongs to the cumulative set of l.
func (l Level) Includes(c Capability) bool {
	for i := LevelNone; i <= l && i.valid(); i++ {
		for _, have := range tiers[i].adds {
			if have == c {
				return true
			}
		}
	}
	return false
}

// ParseLevel resolves a level key, ignoring case.
func ParseLevel(name string) (Level, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	for i, t := range tiers {
		if t.info.Key == key {
			return Level(i), nil
		}
	}
	return LevelNone, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
}

// Levels describes every level, lowest first.
func Levels() []LevelInfo {
	out := make([]LevelInfo, len(tiers))
	for i, t := range tiers {
		out[i] = t.info
	}
	return out
}
