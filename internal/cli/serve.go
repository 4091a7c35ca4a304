// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tabletop-assistant/internal/server"
)

// shutdownTimeout bounds in-flight requests on exit.
const shutdownTimeout = 5 * time.Second

func (a *app) serveCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP bridge for a virtual tabletop",
		Long: `Serve exposes the assistant over HTTP so a virtual tabletop module can
forward chat messages and post the replies back. Settings come from the
[server] section of the config file.`,
		Example: `  tabletop serve
  tabletop serve --listen 0.0.0.0:8787`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asst, cfg, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer asst.Close()

			if listen == "" {
				listen = cfg.Server.Listen
			}
			srv := server.New(listen, asst,
				server.WithAuth(server.NewAuthConfig(cfg.Server.AuthToken, cfg.Server.AllowedIPs)),
				server.WithCORS(server.NewCORSConfig(cfg.Server.AllowedOrigins)),
				server.WithRateLimit(cfg.Server.RequestsPerMinute),
				server.WithLogger(a.logger.WithPrefix("server")),
				server.WithVersion(Version),
			)
			if cfg.Server.AuthToken == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), RenderConditional(WarningStyle,
					"Warning: no auth token set, any local client can post messages."))
			}
			fmt.Fprintln(cmd.OutOrStdout(), RenderConditional(TitleStyle, "Listening on http://"+srv.Addr()))
			return runServer(cmd.Context(), srv)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (overrides server.listen)")
	return cmd
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, srv *server.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
