// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jeranaias/tabletop-assistant/internal/assistant"
	"github.com/jeranaias/tabletop-assistant/internal/config"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	debug      bool
	jsonOutput bool
}

// app carries the global options and lazily built dependencies.
type app struct {
	opts   globalOptions
	logger *log.Logger

	// newAssistant is swapped in tests
	newAssistant func(ctx context.Context, cfg *config.Config, opts ...assistant.Option) (*assistant.Assistant, error)
}

// NewRootCommand builds the tabletop command tree.
func NewRootCommand() *cobra.Command {
	a := &app{newAssistant: assistant.New}

	root := &cobra.Command{
		Use:   "tabletop",
		Short: "Chat-driven AI assistant for tabletop games",
		Long: `tabletop routes chat messages to /ai commands, checks them against a
tiered permission model and queues changes to the game world.

Run "tabletop chat" for an interactive session, "tabletop send" to
route a single message, or "tabletop serve" to bridge a virtual tabletop.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.logger = newLogger(cmd.ErrOrStderr(), a.opts.debug)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.opts.configPath, "config", "c", "", "config file (default ~/.tabletop/config.toml)")
	root.PersistentFlags().BoolVar(&a.opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&a.opts.jsonOutput, "json", false, "write machine-readable JSON")

	root.AddCommand(
		a.chatCommand(),
		a.sendCommand(),
		a.serveCommand(),
		a.permissionsCommand(),
		a.configCommand(),
		a.versionCommand(),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
// SIGINT and SIGTERM cancel the command context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, RenderConditional(ErrorStyle, "Error: "+err.Error()))
		return 1
	}
	return 0
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// newLogger writes structured logs to w. Debug enables debug level and
// caller reporting.
func newLogger(w io.Writer, debug bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           log.WarnLevel,
		Prefix:          "tabletop",
	})
	if debug || os.Getenv("TABLETOP_DEBUG") != "" {
		logger.SetLevel(log.DebugLevel)
		logger.SetReportCaller(true)
	}
	return logger
}

// loadConfig reads --config, or the default locations.
func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.opts.configPath != "" {
		cfg, err = config.LoadFromPath(a.opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if a.opts.debug {
		cfg.General.Debug = true
	}
	return cfg, nil
}

// configPath returns the file to watch or write: --config, else the
// first existing default file, else the default TOML path.
func (a *app) configPath() (string, error) {
	if a.opts.configPath != "" {
		return a.opts.configPath, nil
	}
	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := config.ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return jsonPath, nil
		}
	}
	return tomlPath, nil
}

// open loads the config and builds a started assistant. The caller must
// Close it.
func (a *app) open(ctx context.Context, opts ...assistant.Option) (*assistant.Assistant, *config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	opts = append([]assistant.Option{assistant.WithLogger(a.logger)}, opts...)
	asst, err := a.newAssistant(ctx, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	asst.Start()
	return asst, cfg, nil
}

// writeResult prints data as JSON when --json is set, otherwise calls
// text.
func (a *app) writeResult(cmd *cobra.Command, name string, data any, text func(w io.Writer)) error {
	if a.opts.jsonOutput {
		return NewJSONResponse(name, data).Write(cmd.OutOrStdout())
	}
	text(cmd.OutOrStdout())
	return nil
}
