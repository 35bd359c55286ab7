package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/1broseidon/termpilot/internal/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol server",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve MCP on stdio",
		Long: "Start the MCP server on stdio. Designed to be invoked by MCP clients.\n\n" +
			"Example:\n  claude mcp add termpilot -- termpilot mcp serve",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := newApp(res.Config)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if interval := res.Config.Reconcile.Interval.D(); interval > 0 {
				go a.registry.Run(ctx, interval)
			}

			server := mcp.NewServer(a.registry, a.aggregator, a.contextOptions(), a.logger)
			a.logger.Info("mcp: serving on stdio", "files", res.Files)
			if err := server.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	})
	return cmd
}
