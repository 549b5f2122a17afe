package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/agentic-research/kiln/internal/query"
)

var (
	queryData    string
	queryOptions string
)

var queryCmd = &cobra.Command{
	Use:   "query <namespace> [slug]",
	Short: "Run one lookup against a dataset and print the payload",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		source := queryData
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

		values, err := url.ParseQuery(queryOptions)
		if err != nil {
			return fmt.Errorf("--options: %w", err)
		}
		slug := ""
		if len(args) == 2 {
			slug = args[1]
		}

		res, err := router.Query(cmd.Context(), args[0], slug, query.ParseOptions(values))
		if err != nil {
			return err
		}
		if !res.Found {
			return fmt.Errorf("not found: %s/%s", args[0], slug)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Payload)
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryData, "data", "d", "", "Dataset file or .db store (default: build output)")
	queryCmd.Flags().StringVarP(&queryOptions, "options", "o", "", "Options as a query string, e.g. includeSubfolders=1")
	rootCmd.AddCommand(queryCmd)
}
