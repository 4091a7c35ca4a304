// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces path with data so that readers observe either the
// old content or the complete new content, never a partial write.
//
// The data is written to a temp file in the destination directory, synced,
// chmod'ed and renamed over the target. Missing parent directories are
// created with dirPerm.
func WriteFileAtomic(path string, data []byte, filePerm, dirPerm os.FileMode) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Same directory as the target so the rename stays on one filesystem.
	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := f.Name()

	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, filePerm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tempPath, absPath); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}

	committed = true
	return nil
}
