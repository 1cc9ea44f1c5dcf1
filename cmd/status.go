package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hearing-sync/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store totals, circuit breakers and recent sync health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initSync(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := env.Orch.GetSyncStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			if err := writeJSON(os.Stdout, st); err != nil {
				return err
			}
		} else {
			formatStatus(os.Stdout, st)
		}

		if alert, _ := cmd.Flags().GetBool("alert"); !alert {
			return nil
		}
		collector := monitoring.NewCollector(env.Store, env.Breakers, env.Orch)
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := monitoring.NewChecker(collector, alerter, cfg.Monitoring).Check(ctx)
		for _, a := range alerts {
			zap.L().Warn(a.Message, zap.String("type", string(a.Type)), zap.String("severity", a.Severity))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "print the status as JSON")
	statusCmd.Flags().Bool("alert", false, "evaluate alert thresholds and send webhook alerts")
	rootCmd.AddCommand(statusCmd)
}
