// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gameapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/tabletop-assistant/internal/dice"
	"github.com/jeranaias/tabletop-assistant/internal/entity"
)

// MacroRunner executes a stored macro.
type MacroRunner interface {
	Run(ctx context.Context, macro entity.Document, args []string) (string, error)
}

// MacroCommand returns the command text stored in a macro.
func MacroCommand(macro entity.Document) string {
	cmd, _ := macro.Data["command"].(string)
	return strings.TrimSpace(cmd)
}

// DefaultMacroRunner expands {{args}} in the macro command. Commands of
// the form "roll <formula>" are evaluated; anything else is returned as
// text.
type DefaultMacroRunner struct {
	Roller dice.Roller
}

// Run executes macro with args.
func (r *DefaultMacroRunner) Run(ctx context.Context, macro entity.Document, args []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cmd := MacroCommand(macro)
	if cmd == "" {
		return "", fmt.Errorf("%w: macro %q has no command", ErrValidation, macro.Name)
	}
	cmd = strings.ReplaceAll(cmd, "{{args}}", strings.Join(args, " "))
	for i, a := range args {
		cmd = strings.ReplaceAll(cmd, fmt.Sprintf("{{%d}}", i+1), a)
	}

	fields := strings.Fields(cmd)
	if len(fields) >= 2 && strings.EqualFold(fields[0], "roll") {
		res, err := dice.RollWith(r.Roller, fields[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s: %s = %d", macro.Name, res.Detail(), res.Total), nil
	}
	return cmd, nil
}
