package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBackfillCmd() *cobra.Command {
	var (
		owner      string
		windowDays int
		pageSize   int
		maxPages   int
	)
	cmd := &cobra.Command{
		Use:   "backfill <watchlist-id>",
		Short: "Match one watch list against recent history",
		Long: `Evaluates a watch list against updates fetched within the backfill
window, newest first. Flags override the configured window and paging bounds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			opts := appInstance.BackfillOptions()
			if windowDays > 0 {
				opts.WindowDays = windowDays
			}
			if pageSize > 0 {
				opts.PageSize = pageSize
			}
			if maxPages > 0 {
				opts.MaxPages = maxPages
			}
			summary, runErr := appInstance.BulkMatchWatchList(cmd.Context(), args[0], owner, opts)
			if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
			if runErr != nil {
				return fmt.Errorf("backfill %s: %w", args[0], runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner of the watch list")
	cmd.Flags().IntVar(&windowDays, "window-days", 0, "days of history to scan")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "updates read per page")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum pages read")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
