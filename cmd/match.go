package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMatchCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "match <update-id>",
		Short: "Re-evaluate one stored update against the active watch lists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			matches, matchErr := appInstance.MatchUpdate(cmd.Context(), args[0], owner)
			if err := printJSON(cmd.OutOrStdout(), matches); err != nil {
				return err
			}
			if matchErr != nil {
				return fmt.Errorf("match update %s: %w", args[0], matchErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "restrict to one owner's watch lists")
	return cmd
}
