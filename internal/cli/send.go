// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tabletop-assistant/internal/commands"
)

// messageFlags identify the local chat user.
type messageFlags struct {
	speaker     string
	messageType string
}

func (f *messageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.speaker, "as", "GM", "speaker name for messages")
	cmd.Flags().StringVar(&f.messageType, "type", "ooc", "message type: ic, ooc or other")
}

func (f *messageFlags) message(content string) commands.Message {
	return commands.Message{
		Speaker:   f.speaker,
		Content:   content,
		Type:      f.messageType,
		Timestamp: time.Now(),
	}
}

// sendResult is the --json payload of send.
type sendResult struct {
	Kind    string `json:"kind"`
	Command string `json:"command,omitempty"`
	Text    string `json:"text,omitempty"`
}

func (a *app) sendCommand() *cobra.Command {
	var flags messageFlags
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Route one chat message and print the response",
		Example: `  tabletop send "/ai roll 1d20+5 Stealth"
  tabletop send --as Aria "@ai what does the goblin see?"
  tabletop send --type ic "I draw my sword"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asst, _, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer asst.Close()

			resp := asst.HandleMessage(cmd.Context(), flags.message(strings.Join(args, " ")))
			result := sendResult{Kind: resp.Kind.String(), Command: resp.Command, Text: resp.Text}
			return a.writeResult(cmd, "send", result, func(w io.Writer) {
				if out := RenderResponse(resp); out != "" {
					fmt.Fprintln(w, out)
				}
			})
		},
	}
	flags.register(cmd)
	return cmd
}
