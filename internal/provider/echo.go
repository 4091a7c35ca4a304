// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
)

// EchoName is the name of the local echo provider.
const EchoName = "echo"

// Echo is an offline provider that repeats the message back.
type Echo struct{}

// Name returns "echo".
func (Echo) Name() string { return EchoName }

// ProcessMessage returns a simulated reply.
func (Echo) ProcessMessage(ctx context.Context, text string, _ conversation.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", failure(EchoName, ErrTypeRequest, "canceled", err)
	}
	return fmt.Sprintf("You said: \"%s\". This is a simulated response.", text), nil
}
