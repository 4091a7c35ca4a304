// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package entity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidDocument is returned for documents missing required fields.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrUnknownCollection is returned for collection names outside the set.
	ErrUnknownCollection = errors.New("unknown collection")
)

// =============================================================================
// COLLECTIONS
// =============================================================================

// Collection names a document collection.
type Collection string

const (
	Actors   Collection = "actors"
	Items    Collection = "items"
	Scenes   Collection = "scenes"
	Journals Collection = "journals"
	Macros   Collection = "macros"
)

// Collections lists every collection.
func Collections() []Collection {
	return []Collection{Actors, Items, Scenes, Journals, Macros}
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	switch c {
	case Actors, Items, Scenes, Journals, Macros:
		return true
	}
	return false
}

// Singular returns the display name of one document, e.g. "actor".
func (c Collection) Singular() string {
	switch c {
	case Journals:
		return "journal entry"
	default:
		return strings.TrimSuffix(string(c), "s")
	}
}

// ParseCollection accepts singular or plural names, ignoring case.
func ParseCollection(name string) (Collection, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "actor", "actors":
		return Actors, nil
	case "item", "items":
		return Items, nil
	case "scene", "scenes":
		return Scenes, nil
	case "journal", "journals", "journal-entry", "journal-entries":
		return Journals, nil
	case "macro", "macros":
		return Macros, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCollection, name)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Document is a game-world entity.
type Document struct {
	ID         string         `json:"id"`
	Collection Collection     `json:"collection"`
	Name       string         `json:"name"`
	Type       string         `json:"type,omitempty"`
	Owner      string         `json:"owner,omitempty"`
	ParentID   string         `json:"parent_id,omitempty"`
	Active     bool           `json:"active,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// PlayerOwned reports whether a player owns the document.
func (d Document) PlayerOwned() bool {
	return d.Owner != ""
}

// Patch describes an update. Nil fields are left unchanged; Data keys are
// merged into the existing data, with nil values deleting the key.
type Patch struct {
	Name  *string
	Type  *string
	Owner *string
	Data  map[string]any
}

// Filter narrows Find results.
type Filter struct {
	// Name matches a case-insensitive substring of the document name
	Name string

	// ExactName matches the whole name, ignoring case
	ExactName string

	Type     string
	ParentID string

	// Limit caps the number of results (0 = unlimited)
	Limit int
}

// =============================================================================
// STORE
// =============================================================================

// Store is the entity-store contract.
type Store interface {
	Create(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, c Collection, id string) (Document, error)
	Update(ctx context.Context, c Collection, id string, patch Patch) (Document, error)
	Delete(ctx context.Context, c Collection, id string) error
	Find(ctx context.Context, c Collection, f Filter) ([]Document, error)
	Count(ctx context.Context, c Collection) (int, error)

	// ActivateScene marks one scene active and every other scene inactive.
	ActivateScene(ctx context.Context, id string) (Document, error)

	Close() error
}

// Counts returns the size of every collection.
func Counts(ctx context.Context, s Store) (map[Collection]int, error) {
	out := make(map[Collection]int, len(Collections()))
	for _, c := range Collections() {
		n, err := s.Count(ctx, c)
		if err != nil {
			return nil, err
		}
		out[c] = n
	}
	return out, nil
}

// ActiveScene returns the active scene or ErrNotFound.
func ActiveScene(ctx context.Context, s Store) (Document, error) {
	scenes, err := s.Find(ctx, Scenes, Filter{})
	if err != nil {
		return Document{}, err
	}
	for _, d := range scenes {
		if d.Active {
			return d, nil
		}
	}
	return Document{}, ErrNotFound
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// prepare validates doc for insertion and fills defaults.
func prepare(doc Document, id string, now time.Time) (Document, error) {
	if !doc.Collection.Valid() {
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownCollection, doc.Collection)
	}
	doc.Name = strings.TrimSpace(doc.Name)
	if doc.Name == "" {
		return Document{}, fmt.Errorf("%w: name is required", ErrInvalidDocument)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	doc.Data = cloneData(doc.Data)
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return doc, nil
}

// applyPatch returns doc with p applied.
func applyPatch(doc Document, p Patch, now time.Time) (Document, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return Document{}, fmt.Errorf("%w: name is required", ErrInvalidDocument)
		}
		doc.Name = name
	}
	if p.Type != nil {
		doc.Type = *p.Type
	}
	if p.Owner != nil {
		doc.Owner = *p.Owner
	}
	if len(p.Data) > 0 {
		data := cloneData(doc.Data)
		if data == nil {
			data = make(map[string]any, len(p.Data))
		}
		for k, v := range p.Data {
			if v == nil {
				delete(data, k)
				continue
			}
			data[k] = v
		}
		doc.Data = data
	}
	doc.UpdatedAt = now
	return doc, nil
}

func (f Filter) matches(d Document) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.ExactName != "" && !strings.EqualFold(d.Name, f.ExactName) {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.ParentID != "" && d.ParentID != f.ParentID {
		return false
	}
	return true
}

// sortDocuments orders by name, then creation time, then ID.
func sortDocuments(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := strings.ToLower(docs[i].Name), strings.ToLower(docs[j].Name)
		if a != b {
			return a < b
		}
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

func cloneData(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func notFound(c Collection, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, c.Singular(), id)
}
