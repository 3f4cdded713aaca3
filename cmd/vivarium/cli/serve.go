package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/logging"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/server"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/settings"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		addr        string
		projectRoot string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the activity daemon",
		Long:  "Starts the HTTP ingest endpoint and the observer WebSocket, restoring any persisted session roster.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root := projectRoot
			if root == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to determine working directory: %w", err)
				}
				root = cwd
			}

			cfg, err := settings.Load(root)
			if err != nil {
				return err
			}
			cfg.ProjectRoot = root
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			if err := logging.Init(cfg.LogLevel); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			defer logging.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tel := telemetry.New(ctx, cfg.Telemetry)
			defer tel.Close()

			return server.New(cfg, tel).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides settings)")
	cmd.Flags().StringVar(&projectRoot, "project-root", "", "project root events are canonicalized against (default: cwd)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	return cmd
}
