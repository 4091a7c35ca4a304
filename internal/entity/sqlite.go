// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists documents in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path. The path
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection also
	// keeps an in-memory database alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

const selectColumns = `id, collection, name, type, owner, parent_id, active, data, created_at, updated_at`

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, doc Document) (Document, error) {
	doc, err := prepare(doc, uuid.New().String(), s.now())
	if err != nil {
		return Document{}, err
	}
	data, err := encodeData(doc.Data)
	if err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, collection, name, type, owner, parent_id, active, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, string(doc.Collection), doc.Name, doc.Type, doc.Owner, doc.ParentID,
		boolToInt(doc.Active), data, doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return Document{}, fmt.Errorf("%w: duplicate id %q", ErrInvalidDocument, doc.ID)
		}
		return Document{}, fmt.Errorf("insert %s: %w", doc.Collection.Singular(), err)
	}
	return doc, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, c Collection, id string) (Document, error) {
	if !c.Valid() {
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, c, id)
}

func (s *SQLiteStore) getLocked(ctx context.Context, c Collection, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE collection = ? AND id = ?`, string(c), id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, notFound(c, id)
	}
	return doc, err
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, c Collection, id string, p Patch) (Document, error) {
	if !c.Valid() {
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.getLocked(ctx, c, id)
	if err != nil {
		return Document{}, err
	}
	doc, err = applyPatch(doc, p, s.now())
	if err != nil {
		return Document{}, err
	}
	data, err := encodeData(doc.Data)
	if err != nil {
		return Document{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE documents SET name = ?, type = ?, owner = ?, data = ?, updated_at = ?
		WHERE collection = ? AND id = ?`,
		doc.Name, doc.Type, doc.Owner, data, doc.UpdatedAt.UnixNano(), string(c), id)
	if err != nil {
		return Document{}, fmt.Errorf("update %s: %w", c.Singular(), err)
	}
	return doc, nil
}

// Delete implements Store. Deleting an actor also deletes its embedded items.
func (s *SQLiteStore) Delete(ctx context.Context, c Collection, id string) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, string(c), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", c.Singular(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(c, id)
	}
	if c == Actors {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND parent_id = ?`, string(Items), id); err != nil {
			return fmt.Errorf("delete embedded items: %w", err)
		}
	}
	return tx.Commit()
}

// Find implements Store.
func (s *SQLiteStore) Find(ctx context.Context, c Collection, f Filter) ([]Document, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}

	query := `SELECT ` + selectColumns + ` FROM documents WHERE collection = ?`
	args := []any{string(c)}
	if f.Name != "" {
		query += ` AND instr(lower(name), lower(?)) > 0`
		args = append(args, f.Name)
	}
	if f.ExactName != "" {
		query += ` AND name = ? COLLATE NOCASE`
		args = append(args, f.ExactName)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.ParentID != "" {
		query += ` AND parent_id = ?`
		args = append(args, f.ParentID)
	}
	query += ` ORDER BY name COLLATE NOCASE, created_at, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c, err)
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, c Collection) (int, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, string(c)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c, err)
	}
	return n, nil
}

// ActivateScene implements Store.
func (s *SQLiteStore) ActivateScene(ctx context.Context, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixNano()
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET active = 1, updated_at = ? WHERE collection = ? AND id = ?`,
		now, string(Scenes), id)
	if err != nil {
		return Document{}, fmt.Errorf("activate scene: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Document{}, notFound(Scenes, id)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET active = 0, updated_at = ? WHERE collection = ? AND id != ? AND active = 1`,
		now, string(Scenes), id); err != nil {
		return Document{}, fmt.Errorf("deactivate scenes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit: %w", err)
	}
	return s.getLocked(ctx, Scenes, id)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// ROW HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc                  Document
		collection, data     string
		active               int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&doc.ID, &collection, &doc.Name, &doc.Type, &doc.Owner, &doc.ParentID,
		&active, &data, &createdAt, &updatedAt); err != nil {
		return Document{}, err
	}
	doc.Collection = Collection(collection)
	doc.Active = active != 0
	doc.CreatedAt = time.Unix(0, createdAt)
	doc.UpdatedAt = time.Unix(0, updatedAt)
	if data != "" && data != "{}" {
		if err := json.Unmarshal([]byte(data), &doc.Data); err != nil {
			return Document{}, fmt.Errorf("decode document data: %w", err)
		}
	}
	return doc, nil
}

func encodeData(data map[string]any) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("%w: data is not JSON-encodable: %v", ErrInvalidDocument, err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
