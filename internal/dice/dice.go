// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dice evaluates dice formulas such as "1d20+5" or "2d6-1+d4".
package dice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	// MaxDice is the largest number of dice in one term.
	MaxDice = 100

	// MaxSides is the largest die size.
	MaxSides = 1000
)

// ErrInvalidFormula is returned for formulas that cannot be evaluated.
var ErrInvalidFormula = errors.New("invalid dice formula")

// Term is one signed part of a formula: either NdM or a constant.
type Term struct {
	Sign  int   `json:"sign"`
	Count int   `json:"count,omitempty"`
	Sides int   `json:"sides,omitempty"`
	Value int   `json:"value,omitempty"`
	Rolls []int `json:"rolls,omitempty"`
}

// IsDie reports whether the term is a dice term.
func (t Term) IsDie() bool {
	return t.Sides > 0
}

// Subtotal is the signed value contributed by the term.
func (t Term) Subtotal() int {
	if !t.IsDie() {
		return t.Sign * t.Value
	}
	sum := 0
	for _, r := range t.Rolls {
		sum += r
	}
	return t.Sign * sum
}

// Result is an evaluated formula.
type Result struct {
	Formula string `json:"formula"`
	Terms   []Term `json:"terms"`
	Total   int    `json:"total"`
}

// Detail renders every roll, e.g. "1d20[14] + 5".
func (r Result) Detail() string {
	var b strings.Builder
	for i, t := range r.Terms {
		switch {
		case i == 0 && t.Sign < 0:
			b.WriteString("-")
		case i > 0 && t.Sign < 0:
			b.WriteString(" - ")
		case i > 0:
			b.WriteString(" + ")
		}
		if t.IsDie() {
			rolls := make([]string, len(t.Rolls))
			for j, v := range t.Rolls {
				rolls[j] = strconv.Itoa(v)
			}
			fmt.Fprintf(&b, "%dd%d[%s]", t.Count, t.Sides, strings.Join(rolls, ","))
		} else {
			b.WriteString(strconv.Itoa(t.Value))
		}
	}
	return b.String()
}

// Roller produces die results in [1, sides].
type Roller interface {
	Roll(sides int) int
}

type randRoller struct{}

func (randRoller) Roll(sides int) int {
	return rand.IntN(sides) + 1
}

// Roll evaluates formula with the default random source.
func Roll(formula string) (Result, error) {
	return RollWith(randRoller{}, formula)
}

// RollWith evaluates formula using r. A nil r uses the default source.
func RollWith(r Roller, formula string) (Result, error) {
	if r == nil {
		r = randRoller{}
	}
	terms, err := Parse(formula)
	if err != nil {
		return Result{}, err
	}
	res := Result{Formula: normalize(formula), Terms: terms}
	for i := range res.Terms {
		t := &res.Terms[i]
		if t.IsDie() {
			t.Rolls = make([]int, t.Count)
			for j := range t.Rolls {
				t.Rolls[j] = r.Roll(t.Sides)
			}
		}
		res.Total += t.Subtotal()
	}
	return res, nil
}

// Parse splits formula into unrolled terms.
func Parse(formula string) ([]Term, error) {
	s := normalize(formula)
	if s == "" {
		return nil, fmt.Errorf("%w: empty formula", ErrInvalidFormula)
	}

	var terms []Term
	sign := 1
	start := 0
	expectTerm := true
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '+' && s[i] != '-' {
			continue
		}
		if i == start {
			// Leading sign on the first term.
			if i < len(s) && len(terms) == 0 && expectTerm {
				if s[i] == '-' {
					sign = -sign
				}
				start = i + 1
				continue
			}
			return nil, fmt.Errorf("%w: %q", ErrInvalidFormula, formula)
		}
		t, err := parseTerm(s[start:i])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFormula, formula, err)
		}
		t.Sign = sign
		terms = append(terms, t)
		expectTerm = false
		if i < len(s) {
			sign = 1
			if s[i] == '-' {
				sign = -1
			}
		}
		start = i + 1
	}
	return terms, nil
}

func parseTerm(s string) (Term, error) {
	d := strings.IndexByte(s, 'd')
	if d < 0 {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return Term{}, fmt.Errorf("bad constant %q", s)
		}
		return Term{Value: v}, nil
	}

	count := 1
	if d > 0 {
		n, err := strconv.Atoi(s[:d])
		if err != nil {
			return Term{}, fmt.Errorf("bad dice count %q", s[:d])
		}
		count = n
	}
	sides, err := strconv.Atoi(s[d+1:])
	if err != nil {
		return Term{}, fmt.Errorf("bad die size %q", s[d+1:])
	}
	if count < 1 || count > MaxDice {
		return Term{}, fmt.Errorf("dice count must be between 1 and %d", MaxDice)
	}
	if sides < 1 || sides > MaxSides {
		return Term{}, fmt.Errorf("die size must be between 1 and %d", MaxSides)
	}
	return Term{Count: count, Sides: sides}, nil
}

func normalize(formula string) string {
	return strings.ToLower(strings.Join(strings.Fields(formula), ""))
}
