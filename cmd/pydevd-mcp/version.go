package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/pydevd-mcp/internal/version"
)

func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "pydevd-mcp %s\n", version.Version); err != nil {
				return err
			}
			if !check {
				return nil
			}
			info := version.NewChecker().CheckForUpdates(cmd.Context())
			if info.Error != "" {
				return fmt.Errorf("update check: %s", info.Error)
			}
			msg := info.UpdateMessage()
			if msg == "" {
				msg = "up to date"
			}
			_, err := fmt.Fprintln(out, msg)
			return err
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "query GitHub for a newer release")
	return cmd
}
