package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/pydevd-mcp/internal/config"
)

func newConfigCmd() *cobra.Command {
	var (
		configPath   string
		writeDefault bool
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration or write the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if writeDefault {
				path, err := config.WriteDefault(configPath, force)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return err
			}

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			data, err := cfg.Render()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: user config dir)")
	cmd.Flags().BoolVar(&writeDefault, "write-default", false, "write the default config file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file with --write-default")
	return cmd
}
