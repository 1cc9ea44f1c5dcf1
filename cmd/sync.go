package main

import (
	"context"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hearing-sync/internal/scraper"
	"github.com/sells-group/hearing-sync/internal/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync committees from the Congress.gov API and committee websites",
	Long:  "Runs a full sync for the given committees (default: every active committee), then deduplicates recent hearings and records run metrics.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initSync(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		codes, _ := cmd.Flags().GetStringSlice("committees")
		if len(codes) == 0 {
			codes, err = defaultCommittees(ctx, env.Store)
			if err != nil {
				return err
			}
		}

		res := env.Orch.RunFullSync(ctx, codes)
		zap.L().Info("sync complete",
			zap.String("run_id", res.RunID),
			zap.Int("committees", len(res.Committees)),
			zap.Duration("duration", res.Duration),
		)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, res)
		}
		formatRunResult(os.Stdout, res)
		return nil
	},
}

var syncScheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "Run whatever sync is due at the current hour",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initSync(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		now := time.Now()
		if at, _ := cmd.Flags().GetString("at"); at != "" {
			now, err = time.Parse(time.RFC3339, at)
			if err != nil {
				return eris.Wrapf(err, "parse --at %q", at)
			}
		}

		res, err := env.Orch.RunScheduledSync(ctx, now)
		if err != nil {
			return eris.Wrap(err, "scheduled sync")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, res)
		}
		if res.Run == nil {
			zap.L().Info(res.Message, zap.Int("hour", res.Hour))
			return nil
		}
		formatRunResult(os.Stdout, res.Run)
		return nil
	},
}

// defaultCommittees returns the active configured committees, or every
// committee with a known website when none are configured.
func defaultCommittees(ctx context.Context, st store.Store) ([]string, error) {
	configs, err := st.ListSyncConfigs(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "list active committees")
	}
	codes := make([]string, 0, len(configs))
	for _, c := range configs {
		codes = append(codes, strings.ToUpper(c.CommitteeCode))
	}
	if len(codes) == 0 {
		for code := range scraper.DefaultSites() {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func init() {
	syncCmd.PersistentFlags().Bool("json", false, "print the result as JSON")
	syncCmd.Flags().StringSlice("committees", nil, "committee codes to sync (default: all active)")
	syncScheduledCmd.Flags().String("at", "", "evaluate the schedule at this RFC3339 time instead of now")

	syncCmd.AddCommand(syncScheduledCmd)
	rootCmd.AddCommand(syncCmd)
}
