package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/kv"
)

// TokenEnv names the variable holding the Cloudflare API token.
const TokenEnv = "CF_API_TOKEN"

var publishPreview bool

var publishCmd = &cobra.Command{
	Use:   "publish <data>",
	Short: "Upload a dataset to Cloudflare Workers KV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		namespaceID := project.Cloudflare.NamespaceID
		if publishPreview {
			namespaceID = project.Cloudflare.PreviewNamespaceID
		}
		publisher, err := kv.NewPublisher(project.Cloudflare.AccountID, namespaceID, os.Getenv(TokenEnv))
		if err != nil {
			return err
		}

		entries, err := ingest.ReadDataset(args[0])
		if err != nil {
			return err
		}
		n, err := publisher.Publish(cmd.Context(), entries)
		if err != nil {
			return fmt.Errorf("published %d of %d entries: %w", n, len(entries), err)
		}
		logger.Info("dataset published", zap.String("namespace_id", namespaceID), zap.Int("entries", n))
		fmt.Fprintf(cmd.OutOrStdout(), "published %d entries\n", n)
		return nil
	},
}

func init() {
	publishCmd.Flags().BoolVar(&publishPreview, "preview", false, "Publish to the preview namespace")
	rootCmd.AddCommand(publishCmd)
}
