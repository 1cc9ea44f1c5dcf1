package syncer

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hearing-sync/internal/model"
)

// RunScheduledSync decides what is due at now and runs it. At the daily
// hour every active committee is synced from the API; at a website hour the
// priority committees are scraped; otherwise only overdue committees are
// synced. When nothing is due the result carries ModeNothingToRun.
//
// Only a failure to read sync configuration is returned as an error.
func (o *Orchestrator) RunScheduledSync(ctx context.Context, now time.Time) (*ScheduledResult, error) {
	hour := now.In(o.cfg.Location).Hour()

	o.storeMu.Lock()
	configs, err := o.store.ListSyncConfigs(ctx, true)
	o.storeMu.Unlock()
	if err != nil {
		return nil, eris.Wrap(err, "syncer: load active sync configs")
	}

	res := &ScheduledResult{Hour: hour, Committees: []string{}}
	plans := make(map[string]plan)

	switch {
	case hour == o.cfg.DailyHour:
		res.Mode = ModeDailyAPI
		for _, c := range configs {
			if c.APIEnabled {
				plans[normalize(c.CommitteeCode)] = plan{api: true}
			}
		}
	case slices.Contains(o.cfg.WebsiteHours, hour):
		res.Mode = ModePriorityWeb
		for _, c := range configs {
			if c.IsPriority() && c.WebsiteEnabled {
				plans[normalize(c.CommitteeCode)] = plan{website: true}
			}
		}
	default:
		res.Mode = ModeOverdue
		for _, c := range configs {
			due, err := o.overdue(ctx, c, now)
			if err != nil {
				o.log.Warn("could not check last sync", zap.String("committee", c.CommitteeCode), zap.Error(err))
				continue
			}
			if due {
				plans[normalize(c.CommitteeCode)] = plan{api: c.APIEnabled, website: c.WebsiteEnabled}
			}
		}
	}

	if len(plans) == 0 {
		res.Message = "no committees due for " + res.Mode
		res.Mode = ModeNothingToRun
		o.log.Info("scheduled sync: nothing due", zap.Int("hour", hour))
		return res, nil
	}

	res.Committees = sortedKeys(plans)
	o.log.Info("scheduled sync",
		zap.String("mode", res.Mode),
		zap.Int("hour", hour),
		zap.Strings("committees", res.Committees),
	)
	res.Run = o.run(ctx, res.Committees, plans)
	return res, nil
}

// overdue reports whether a committee's last successful sync is older than
// its sync frequency. The API source is judged when it is enabled and a
// connector is configured; otherwise the website source is.
func (o *Orchestrator) overdue(ctx context.Context, c model.SyncConfig, now time.Time) (bool, error) {
	var source model.Source
	switch {
	case c.APIEnabled && o.configured(model.SourceCongressAPI):
		source = model.SourceCongressAPI
	case c.WebsiteEnabled && o.configured(model.SourceWebsite):
		source = model.SourceWebsite
	default:
		return false, nil
	}

	o.storeMu.Lock()
	last, err := o.store.LastSuccessfulSync(ctx, c.CommitteeCode, source)
	o.storeMu.Unlock()
	if err != nil {
		return false, err
	}
	return IsOverdue(now, last, c.SyncFrequencyHours, o.cfg.DefaultFrequencyHours), nil
}

// IsOverdue reports whether a sync last completed at lastSync is due again
// at now. A committee never synced is always due.
func IsOverdue(now time.Time, lastSync *time.Time, frequencyHours, defaultHours int) bool {
	if lastSync == nil {
		return true
	}
	if frequencyHours <= 0 {
		frequencyHours = defaultHours
	}
	return !now.Before(lastSync.Add(time.Duration(frequencyHours) * time.Hour))
}
