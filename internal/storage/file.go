// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeranaias/tabletop-assistant/internal/util"
)

// FileKV stores each key as <dir>/<key>.json.
type FileKV struct {
	// BaseDir is the directory holding the value files.
	BaseDir string

	mu sync.RWMutex
}

// NewFileKV creates a file store rooted at dir, creating it if needed.
// An empty dir defaults to ~/.tabletop/state.
func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".tabletop", "state")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileKV{BaseDir: dir}, nil
}

func (f *FileKV) filePath(key string) string {
	return filepath.Join(f.BaseDir, key+".json")
}

// Get implements KV.
func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.filePath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Set implements KV. Values are written atomically.
func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := util.WriteFileAtomic(f.filePath(key), value, 0600, 0700); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete implements KV.
func (f *FileKV) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.filePath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close implements KV.
func (f *FileKV) Close() error { return nil }
