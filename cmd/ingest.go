package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass over the configured sources",
		Long: `Collects candidates from every configured feed and site, classifies
the new ones, stores them and matches them against the active watch lists.
The run summary is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, runErr := appInstance.RunIngestion(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
			if runErr != nil {
				return fmt.Errorf("ingestion run: %w", runErr)
			}
			appInstance.Logger().Info("ingest command finished",
				zap.Int("processed", summary.Totals.Processed),
				zap.Int("skipped", summary.Totals.Skipped),
				zap.Int("failed", summary.Totals.Failed),
			)
			return nil
		},
	}
}
