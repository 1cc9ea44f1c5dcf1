package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Report duplicate hearings in the recent window",
	Long:  "Compares recent active hearings pairwise. With --apply, high-confidence duplicates are merged; medium-confidence pairs are listed for manual review.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initSync(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		codes, _ := cmd.Flags().GetStringSlice("committees")
		apply, _ := cmd.Flags().GetBool("apply")

		res, err := env.Orch.Deduplicate(ctx, codes, apply)
		if err != nil {
			return eris.Wrap(err, "dedup")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, res)
		}
		formatDedupResult(os.Stdout, res)
		return nil
	},
}

func init() {
	dedupCmd.Flags().Bool("apply", false, "merge auto-merge matches")
	dedupCmd.Flags().StringSlice("committees", nil, "restrict to these committee codes")
	dedupCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(dedupCmd)
}
