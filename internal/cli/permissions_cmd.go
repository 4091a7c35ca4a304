// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tabletop-assistant/internal/permission"
)

// operatorActor is recorded in permission history for CLI changes.
const operatorActor = "operator"

// permissionsCommand manages the persisted permission state directly.
// Changes are forced: the operator at the terminal acts as game master.
func (a *app) permissionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "permissions",
		Aliases: []string{"perms"},
		Short:   "Inspect and change assistant permissions",
	}
	cmd.AddCommand(
		a.permLevelCommand(),
		a.permGrantCommand(),
		a.permRevokeCommand(),
		a.permHistoryCommand(),
		a.permStatusCommand(),
	)
	return cmd
}

// withPermissions opens the assistant, runs fn against its permission
// store and closes everything.
func (a *app) withPermissions(cmd *cobra.Command, fn func(*permission.Store) error) error {
	asst, _, err := a.open(cmd.Context())
	if err != nil {
		return err
	}
	defer asst.Close()
	return fn(asst.Permissions())
}

type levelResult struct {
	Level    string                 `json:"level"`
	Previous string                 `json:"previous,omitempty"`
	Levels   []permission.LevelInfo `json:"levels,omitempty"`
}

func (a *app) permLevelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "level [NONE|BASIC|STANDARD|ADVANCED|FULL]",
		Short: "Show or set the permission level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPermissions(cmd, func(store *permission.Store) error {
				result := levelResult{Level: store.Level().String()}
				if len(args) == 1 {
					result.Previous = result.Level
					if err := store.SetLevel(args[0], operatorActor); err != nil {
						return err
					}
					result.Level = store.Level().String()
				} else {
					result.Levels = permission.Levels()
				}

				return a.writeResult(cmd, "permissions level", result, func(w io.Writer) {
					if result.Previous != "" {
						fmt.Fprintf(w, "%s %s -> %s\n",
							RenderConditional(SuccessStyle, "Permission level changed:"),
							result.Previous, result.Level)
						return
					}
					fmt.Fprintf(w, "%s%s\n", RenderLabel("Current level:"), RenderConditional(ValueStyle, result.Level))
					for _, info := range result.Levels {
						marker := "  "
						if info.Key == result.Level {
							marker = "* "
						}
						fmt.Fprintf(w, "%s%-9s %s\n", marker, info.Key, RenderConditional(DimStyle, info.Description))
					}
				})
			})
		},
	}
}

type grantResult struct {
	Capability string        `json:"capability"`
	Value      bool          `json:"value"`
	Temporary  bool          `json:"temporary,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

func (a *app) permGrantCommand() *cobra.Command {
	var (
		temporary time.Duration
		deny      bool
		reason    string
	)
	cmd := &cobra.Command{
		Use:   "grant <capability>",
		Short: "Grant (or with --deny, explicitly deny) one capability",
		Long: `Grant sets a single capability regardless of the level. Temporary
grants live in memory and end with the process that made them.`,
		Example: `  tabletop permissions grant create-actor
  tabletop permissions grant execute-macro --deny`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := permission.ParseCapability(args[0])
			if err != nil {
				return err
			}
			return a.withPermissions(cmd, func(store *permission.Store) error {
				opts := permission.GrantOptions{
					Force:  true,
					Actor:  operatorActor,
					Reason: reason,
				}
				if temporary > 0 {
					opts.Temporary = true
					opts.Duration = temporary
				}
				if err := store.Grant(c, !deny, opts); err != nil {
					return err
				}
				result := grantResult{Capability: c.String(), Value: !deny, Temporary: opts.Temporary, Duration: temporary}
				return a.writeResult(cmd, "permissions grant", result, func(w io.Writer) {
					verb := "Granted"
					if deny {
						verb = "Denied"
					}
					line := fmt.Sprintf("%s %s", verb, c)
					if opts.Temporary {
						line += fmt.Sprintf(" for %s", temporary)
					}
					fmt.Fprintln(w, RenderConditional(SuccessStyle, line))
				})
			})
		},
	}
	cmd.Flags().DurationVar(&temporary, "temporary", 0, "make the grant expire after this duration")
	cmd.Flags().BoolVar(&deny, "deny", false, "record an explicit denial instead of a grant")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in history")
	return cmd
}

func (a *app) permRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <capability>",
		Short: "Revoke one capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := permission.ParseCapability(args[0])
			if err != nil {
				return err
			}
			return a.withPermissions(cmd, func(store *permission.Store) error {
				if err := store.Revoke(c, permission.GrantOptions{Force: true, Actor: operatorActor}); err != nil {
					return err
				}
				result := grantResult{Capability: c.String(), Value: false}
				return a.writeResult(cmd, "permissions revoke", result, func(w io.Writer) {
					fmt.Fprintln(w, RenderConditional(SuccessStyle, "Revoked "+c.String()))
				})
			})
		},
	}
}

func (a *app) permHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent permission changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withPermissions(cmd, func(store *permission.Store) error {
				entries := store.History(limit)
				return a.writeResult(cmd, "permissions history", entries, func(w io.Writer) {
					if len(entries) == 0 {
						fmt.Fprintln(w, RenderConditional(DimStyle, "No permission changes recorded."))
						return
					}
					for _, e := range entries {
						fmt.Fprintf(w, "%s  %-8s %s\n",
							RenderConditional(DimStyle, e.Timestamp.Format(time.DateTime)),
							e.Actor, describeEntry(e))
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func describeEntry(e permission.HistoryEntry) string {
	if e.Level != "" {
		return fmt.Sprintf("level %s -> %s", e.PreviousLevel, e.Level)
	}
	verb := "revoked"
	if e.Value {
		verb = "granted"
	}
	s := fmt.Sprintf("%s %s", verb, e.Capability)
	if e.Temporary {
		s += " (temporary)"
	}
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	return s
}

type statusResult struct {
	Stats  permission.Stats         `json:"stats"`
	Active []permission.ActiveGrant `json:"active"`
}

func (a *app) permStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List the capabilities currently granted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withPermissions(cmd, func(store *permission.Store) error {
				result := statusResult{Stats: store.Stats(), Active: store.Active()}
				return a.writeResult(cmd, "permissions status", result, func(w io.Writer) {
					fmt.Fprintln(w, RenderConditional(TitleStyle, "Permissions"))
					fmt.Fprintf(w, "%s%s\n", RenderLabel("Level:"), result.Stats.Level)
					fmt.Fprintf(w, "%s%d (%d temporary)\n", RenderLabel("Active grants:"), result.Stats.Active, result.Stats.Temporary)
					fmt.Fprintln(w, RenderSeparator(40))
					for _, g := range result.Active {
						line := g.Capability.String()
						if !g.Value {
							line += " (denied)"
						}
						if g.Temporary {
							line += RenderConditional(DimStyle, fmt.Sprintf(" (expires in %s)", g.Remaining.Round(time.Second)))
						}
						fmt.Fprintln(w, "  "+line)
					}
				})
			})
		},
	}
}
