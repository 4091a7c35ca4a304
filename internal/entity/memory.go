// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package entity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[Collection]map[string]Document
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	docs := make(map[Collection]map[string]Document)
	for _, c := range Collections() {
		docs[c] = make(map[string]Document)
	}
	return &MemoryStore{docs: docs, now: time.Now}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, doc Document) (Document, error) {
	doc, err := prepare(doc, uuid.New().String(), m.now())
	if err != nil {
		return Document{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.Collection][doc.ID]; exists {
		return Document{}, fmt.Errorf("%w: duplicate id %q", ErrInvalidDocument, doc.ID)
	}
	m.docs[doc.Collection][doc.ID] = doc
	return copyDoc(doc), nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, c Collection, id string) (Document, error) {
	if !c.Valid() {
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[c][id]
	if !ok {
		return Document{}, notFound(c, id)
	}
	return copyDoc(doc), nil
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, c Collection, id string, p Patch) (Document, error) {
	if !c.Valid() {
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[c][id]
	if !ok {
		return Document{}, notFound(c, id)
	}
	doc, err := applyPatch(doc, p, m.now())
	if err != nil {
		return Document{}, err
	}
	m.docs[c][id] = doc
	return copyDoc(doc), nil
}

// Delete implements Store. Deleting an actor also deletes its embedded items.
func (m *MemoryStore) Delete(_ context.Context, c Collection, id string) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[c][id]; !ok {
		return notFound(c, id)
	}
	delete(m.docs[c], id)
	if c == Actors {
		for itemID, item := range m.docs[Items] {
			if item.ParentID == id {
				delete(m.docs[Items], itemID)
			}
		}
	}
	return nil
}

// Find implements Store.
func (m *MemoryStore) Find(_ context.Context, c Collection, f Filter) ([]Document, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	m.mu.RLock()
	out := make([]Document, 0)
	for _, doc := range m.docs[c] {
		if f.matches(doc) {
			out = append(out, copyDoc(doc))
		}
	}
	m.mu.RUnlock()

	sortDocuments(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context, c Collection) (int, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[c]), nil
}

// ActivateScene implements Store.
func (m *MemoryStore) ActivateScene(_ context.Context, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.docs[Scenes][id]
	if !ok {
		return Document{}, notFound(Scenes, id)
	}
	now := m.now()
	for sid, scene := range m.docs[Scenes] {
		if scene.Active && sid != id {
			scene.Active = false
			scene.UpdatedAt = now
			m.docs[Scenes][sid] = scene
		}
	}
	target.Active = true
	target.UpdatedAt = now
	m.docs[Scenes][id] = target
	return copyDoc(target), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func copyDoc(d Document) Document {
	d.Data = cloneData(d.Data)
	return d
}
