// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gameapi

import (
	"encoding/json"
	"strings"

	"github.com/jeranaias/tabletop-assistant/internal/entity"
)

// reserved keys are lifted out of a payload map into Document fields.
var reserved = map[string]bool{
	"name": true, "type": true, "owner": true, "actorId": true, "actor_id": true,
}

// ParsePayload decodes a JSON object. Text that is not a JSON object is
// treated as a bare name.
func ParsePayload(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return map[string]any{"name": raw}
	}
	return m
}

// DocumentFromMap builds a document in c from a decoded payload. Keys
// other than name, type, owner and actorId go into Data.
func DocumentFromMap(c entity.Collection, m map[string]any) entity.Document {
	doc := entity.Document{Collection: c}
	doc.Name = stringField(m, "name")
	doc.Type = stringField(m, "type")
	doc.Owner = stringField(m, "owner")
	doc.ParentID = stringField(m, "actorId")
	if doc.ParentID == "" {
		doc.ParentID = stringField(m, "actor_id")
	}
	for k, v := range m {
		if reserved[k] {
			continue
		}
		if doc.Data == nil {
			doc.Data = make(map[string]any)
		}
		doc.Data[k] = v
	}
	return doc
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
