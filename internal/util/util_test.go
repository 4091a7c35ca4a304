// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_CreatesParentAndWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`), 0600, 0700))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestWriteFileAtomic_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0600, 0700))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0600, 0700))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "goblin", 10, "goblin"},
		{"cut", "Taverna do Javali Dourado", 10, "Taverna..."},
		{"tiny", "dragon", 2, "dr"},
		{"zero", "dragon", 0, ""},
		{"wide runes", "日本語テキスト", 7, "日本..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.width))
		})
	}
}

func TestSingleLine(t *testing.T) {
	assert.Equal(t, "a b c", SingleLine("  a\n\tb   c \n"))
}

func TestRing_EvictsOldestFirst(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 3; i++ {
		_, evicted := r.Push(i)
		assert.False(t, evicted)
	}

	old, evicted := r.Push(4)
	assert.True(t, evicted)
	assert.Equal(t, 1, old)
	assert.Equal(t, []int{2, 3, 4}, r.Items())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())
}

func TestRing_Last(t *testing.T) {
	r := NewRing[string](5)
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		r.Push(s)
	}

	assert.Equal(t, []string{"e", "f", "g"}, r.Last(3))
	assert.Equal(t, []string{"c", "d", "e", "f", "g"}, r.Last(50))
	assert.Empty(t, r.Last(0))
}

func TestRing_Clear(t *testing.T) {
	r := NewRing[int](0)
	assert.Equal(t, 1, r.Cap())

	r.Push(7)
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Items())
}
