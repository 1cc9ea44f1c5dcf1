package syncer

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hearing-sync/internal/model"
)

// GetSyncStatus returns store statistics, breaker states and a summary of
// recent sync metrics per source.
func (o *Orchestrator) GetSyncStatus(ctx context.Context) (*Status, error) {
	o.storeMu.Lock()
	stats, err := o.store.Statistics(ctx)
	if err != nil {
		o.storeMu.Unlock()
		return nil, eris.Wrap(err, "syncer: statistics")
	}
	metrics, err := o.store.RecentMetrics(ctx, o.cfg.RecentMetricsLimit)
	o.storeMu.Unlock()
	if err != nil {
		return nil, eris.Wrap(err, "syncer: recent metrics")
	}

	st := &Status{
		GeneratedAt:   o.now().UTC(),
		Stats:         stats,
		Breakers:      o.breakers.States(),
		RecentMetrics: metrics,
		Sources:       make(map[model.Source]SourceStatus, 2),
	}
	for _, src := range model.Sources() {
		st.Sources[src] = summarize(src, metrics, o.configured(src), o.Breaker(src).Allow())
	}
	return st, nil
}

func summarize(src model.Source, metrics []model.SyncMetric, configured, usable bool) SourceStatus {
	s := SourceStatus{Configured: configured, Usable: usable}
	var rate float64
	var ms int64
	for _, m := range metrics {
		if m.Source != src {
			continue
		}
		s.Runs++
		if !m.Success {
			s.Failures++
		}
		rate += m.SuccessRate
		ms += m.ExecutionTimeMS
	}
	if s.Runs > 0 {
		s.AvgSuccessRate = rate / float64(s.Runs)
		s.AvgExecutionMS = ms / int64(s.Runs)
	}
	return s
}
