// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRoller returns its values in order, then repeats the last one.
type fixedRoller struct {
	values []int
	i      int
}

func (f *fixedRoller) Roll(sides int) int {
	v := f.values[len(f.values)-1]
	if f.i < len(f.values) {
		v = f.values[f.i]
		f.i++
	}
	if v > sides {
		v = sides
	}
	return v
}

func TestRollWith(t *testing.T) {
	tests := []struct {
		formula string
		rolls   []int
		total   int
		detail  string
	}{
		{"1d20+5", []int{14}, 19, "1d20[14] + 5"},
		{"2d6-1+d4", []int{3, 4, 2}, 8, "2d6[3,4] - 1 + 1d4[2]"},
		{"d8", []int{8}, 8, "1d8[8]"},
		{"7", []int{1}, 7, "7"},
		{"-2+1d6", []int{5}, 3, "-2 + 1d6[5]"},
		{" 1D20 + 2 ", []int{10}, 12, "1d20[10] + 2"},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			res, err := RollWith(&fixedRoller{values: tt.rolls}, tt.formula)
			require.NoError(t, err)
			assert.Equal(t, tt.total, res.Total)
			assert.Equal(t, tt.detail, res.Detail())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, f := range []string{
		"", "   ", "1d", "d", "xd6", "1d6+", "1d6++2", "+", "2d0", "0d6",
		"101d6", "1d1001", "1d6*2", "abc",
	} {
		_, err := Parse(f)
		assert.ErrorIs(t, err, ErrInvalidFormula, "formula %q", f)
	}
}

func TestRoll_Bounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		res, err := Roll("3d6")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Total, 3)
		assert.LessOrEqual(t, res.Total, 18)
		require.Len(t, res.Terms, 1)
		assert.Len(t, res.Terms[0].Rolls, 3)
	}
}

func TestRoll_MaxLimits(t *testing.T) {
	res, err := Roll("100d1000")
	require.NoError(t, err)
	assert.Len(t, res.Terms[0].Rolls, MaxDice)
}
