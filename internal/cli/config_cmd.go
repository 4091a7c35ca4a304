// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tabletop-assistant/internal/config"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, create and edit the configuration file",
	}
	cmd.AddCommand(
		a.configShowCommand(),
		a.configInitCommand(),
		a.configGetCommand(),
		a.configSetCommand(),
		a.configKeysCommand(),
	)
	return cmd
}

func (a *app) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (secrets redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if a.opts.jsonOutput {
				var redacted map[string]any
				if err := json.Unmarshal([]byte(cfg.String()), &redacted); err != nil {
					return err
				}
				return NewJSONResponse("config show", redacted).Write(cmd.OutOrStdout())
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}
}

func (a *app) configInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.configPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := saveConfig(config.Default(), path); err != nil {
				return err
			}
			return a.writeResult(cmd, "config init", map[string]string{"path": path}, func(w io.Writer) {
				fmt.Fprintln(w, RenderConditional(SuccessStyle, "Wrote "+path))
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (a *app) configGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting by dotted key",
		Example: `  tabletop config get general.command_prefix
  tabletop config get permissions.default_level`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			value, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			if isSecretKey(args[0]) {
				value = "[REDACTED]"
			}
			return a.writeResult(cmd, "config get", map[string]any{"key": args[0], "value": value}, func(w io.Writer) {
				fmt.Fprintln(w, value)
			})
		},
	}
}

func (a *app) configSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting and save the file",
		Long: `Set validates the result before saving. Only values from the file are
written back; environment overrides such as API keys are never saved. A
running "tabletop chat --watch" picks up prefix, mention token, enabled
and provider changes immediately.`,
		Example: `  tabletop config set general.command_prefix !gm
  tabletop config set provider.default anthropic`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.configPath()
			if err != nil {
				return err
			}
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				if cfg, err = config.ReadFromPath(path); err != nil {
					return err
				}
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := saveConfig(cfg, path); err != nil {
				return err
			}
			return a.writeResult(cmd, "config set", map[string]string{"key": args[0], "path": path}, func(w io.Writer) {
				fmt.Fprintln(w, RenderConditional(SuccessStyle, fmt.Sprintf("Set %s in %s", args[0], path)))
			})
		},
	}
}

func (a *app) configKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every settable key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys := config.Keys()
			return a.writeResult(cmd, "config keys", keys, func(w io.Writer) {
				for _, k := range keys {
					fmt.Fprintln(w, k)
				}
			})
		},
	}
}

// saveConfig writes TOML or JSON by file extension.
func saveConfig(cfg *config.Config, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	return strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "redis_url")
}
