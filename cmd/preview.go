package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/kv"
)

var previewCmd = &cobra.Command{
	Use:   "preview <data>",
	Short: "Load a dataset into the local SQLite preview store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		entries, err := ingest.ReadDataset(args[0])
		if err != nil {
			return err
		}
		store, err := kv.OpenSQLite(project.Store.Path)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.Replace(cmd.Context(), entries); err != nil {
			return err
		}
		logger.Info("preview store loaded", zap.String("store", project.Store.Path), zap.Int("entries", len(entries)))
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries\n", project.Store.Path, len(entries))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
}
