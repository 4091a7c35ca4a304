// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package entity

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1
)

// Schema is the SQLite schema for the document store.
const Schema = `
-- Metadata table for schema version
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Documents table: every collection shares one table
CREATE TABLE IF NOT EXISTS documents (
    id TEXT NOT NULL,
    collection TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT '',
    owner TEXT NOT NULL DEFAULT '',
    parent_id TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 0,
    data TEXT NOT NULL DEFAULT '{}',  -- JSON object
    created_at INTEGER NOT NULL,      -- Unix nanoseconds
    updated_at INTEGER NOT NULL,      -- Unix nanoseconds
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_name ON documents(collection, name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent_id);
`

// InitMetadata records the schema version.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
`
