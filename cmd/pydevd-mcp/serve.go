package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"github.com/ctagard/pydevd-mcp/internal/config"
	"github.com/ctagard/pydevd-mcp/internal/mcp"
	"github.com/ctagard/pydevd-mcp/internal/version"
)

func newServeCmd() *cobra.Command {
	var (
		configPath  string
		mode        string
		checkUpdate bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Mode = config.CapabilityMode(mode)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			logger := newLogger(cfg.Logging.Level)
			log.SetOutput(pslog.LogLogger(logger).Writer())
			ctx := pslog.ContextWithLogger(cmd.Context(), logger)

			if checkUpdate {
				go func() {
					info := version.NewChecker().CheckForUpdates(ctx)
					if msg := info.UpdateMessage(); msg != "" {
						logger.Info("version.update.available", "notice", msg)
					}
				}()
			}

			server := mcp.NewServer(ctx, cfg)
			defer server.Close()

			logger.Info("mcp.server.serving", "version", version.Version, "mode", string(cfg.Mode))
			if err := server.ServeStdio(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("serve stdio: %w", err)
			}
			logger.Info("mcp.server.stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: user config dir)")
	cmd.Flags().StringVar(&mode, "mode", "", "capability mode: readonly or full (overrides config)")
	cmd.Flags().BoolVar(&checkUpdate, "check-update", false, "log a notice when a newer release exists")
	return cmd
}
