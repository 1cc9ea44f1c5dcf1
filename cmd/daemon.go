package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hearing-sync/internal/monitoring"
	"github.com/sells-group/hearing-sync/internal/syncer"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled syncs on a cron trigger until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSync(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		loc, err := cfg.Schedule.Location()
		if err != nil {
			return err
		}

		c, err := newScheduler(ctx, cfg.Schedule.Cron, loc, env.Orch)
		if err != nil {
			return err
		}

		if cfg.Monitoring.Enabled {
			collector := monitoring.NewCollector(env.Store, env.Breakers, env.Orch)
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		log := zap.L().With(zap.String("component", "daemon"))
		log.Info("starting scheduler", zap.String("cron", cfg.Schedule.Cron), zap.String("timezone", loc.String()))
		c.Start()

		<-ctx.Done()
		log.Info("stopping scheduler; waiting for the running sync")
		<-c.Stop().Done()
		return nil
	},
}

// scheduledRunner is the orchestrator surface the daemon triggers.
type scheduledRunner interface {
	RunScheduledSync(ctx context.Context, now time.Time) (*syncer.ScheduledResult, error)
}

// newScheduler registers one job that runs the scheduled sync. A trigger
// that fires while the previous run is still going is skipped.
func newScheduler(ctx context.Context, spec string, loc *time.Location, runner scheduledRunner) (*cron.Cron, error) {
	log := zap.L().With(zap.String("component", "daemon"))
	c := cron.New(cron.WithLocation(loc))

	var running sync.Mutex
	_, err := c.AddFunc(spec, func() {
		if !running.TryLock() {
			log.Warn("previous scheduled sync still running; skipping trigger")
			return
		}
		defer running.Unlock()

		res, err := runner.RunScheduledSync(ctx, time.Now())
		if err != nil {
			log.Error("scheduled sync failed", zap.Error(err))
			return
		}
		fields := []zap.Field{zap.String("mode", res.Mode), zap.Int("hour", res.Hour)}
		if res.Run != nil {
			fields = append(fields, zap.String("run_id", res.Run.RunID), zap.Strings("committees", res.Committees))
		}
		log.Info("scheduled sync finished", fields...)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "parse schedule.cron %q", spec)
	}
	return c, nil
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
