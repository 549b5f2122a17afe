package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/kiln/internal/ingest"
)

var buildCmd = &cobra.Command{
	Use:   "build [output]",
	Short: "Build the content dataset from the source directory",
	Long: `Walks the configured source directory, runs every transform and derive
plugin, and writes the namespaced dataset. An output ending in .zst is
zstd-compressed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		output := project.Output
		if len(args) == 1 {
			output = args[0]
		}

		start := time.Now()
		entries, err := buildDataset(cmd.Context(), project, logger)
		if err != nil {
			return err
		}
		if err := ingest.WriteDataset(output, entries); err != nil {
			return err
		}
		digest, err := ingest.Digest(entries)
		if err != nil {
			return err
		}
		logger.Info("dataset written",
			zap.String("path", output),
			zap.Int("entries", len(entries)),
			zap.String("digest", digest),
			zap.Duration("elapsed", time.Since(start)))
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries\n", output, len(entries))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
