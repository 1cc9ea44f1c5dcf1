package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/hearing-sync/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultRepeatAfter   = time.Hour
)

// Checker evaluates sync health on an interval and posts alerts. An alert
// that keeps firing is sent once per repeat window; once it clears it may
// be sent again on the next trigger.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	now       func() time.Time
	log       *zap.Logger

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		now:       time.Now,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
		lastSent:  make(map[AlertType]time.Time),
	}
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs <= 0 {
		return defaultCheckInterval
	}
	return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
}

func (c *Checker) repeatAfter() time.Duration {
	if c.cfg.RepeatAlertMinutes <= 0 {
		return defaultRepeatAfter
	}
	return time.Duration(c.cfg.RepeatAlertMinutes) * time.Minute
}

// Run checks once immediately, then on every interval until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	interval := c.interval()
	c.log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Duration("repeat_after", c.repeatAfter()),
	)
	if ctx.Err() == nil {
		c.Check(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and evaluates it. Alerts outside their
// repeat window are sent. It returns every triggered alert, sent or not,
// or nil when collection failed.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.log.Error("monitoring: failed to collect sync health", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	due := c.due(alerts)
	if len(alerts) == 0 {
		c.log.Debug("monitoring: sync health ok",
			zap.Int("sync_runs", snap.SyncRuns),
			zap.Int("review_backlog", snap.ReviewBacklog),
		)
		return alerts
	}

	sent := c.alerter.SendAlerts(ctx, due)
	c.log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_suppressed", len(alerts)-len(due)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}

// due filters alerts down to those not sent within the repeat window and
// forgets alert types that stopped firing.
func (c *Checker) due(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	firing := make(map[AlertType]bool, len(alerts))
	var out []Alert
	for _, a := range alerts {
		firing[a.Type] = true
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < c.repeatAfter() {
			continue
		}
		c.lastSent[a.Type] = now
		out = append(out, a)
	}
	for t := range c.lastSent {
		if !firing[t] {
			delete(c.lastSent, t)
		}
	}
	return out
}
