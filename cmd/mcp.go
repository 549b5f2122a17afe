package cmd

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/kiln/internal/mcpserver"
)

var mcpData string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the query tool over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		source := mcpData
		if source == "" {
			source = project.Output
		}
		reader, closeReader, err := openReader(source)
		if err != nil {
			return err
		}
		defer func() { _ = closeReader() }()

		router, err := newRouter(project, reader, logger)
		if err != nil {
			return err
		}
		return server.ServeStdio(mcpserver.New(router, Version, logger))
	},
}

func init() {
	mcpCmd.Flags().StringVarP(&mcpData, "data", "d", "", "Dataset file or .db store (default: build output)")
	rootCmd.AddCommand(mcpCmd)
}
