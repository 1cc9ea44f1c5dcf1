package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hearing-sync/internal/model"
	"github.com/sells-group/hearing-sync/internal/resilience"
	"github.com/sells-group/hearing-sync/internal/store"
	"github.com/sells-group/hearing-sync/internal/syncer"
)

// metricsScanLimit bounds how many sync_metrics rows one collection reads.
const metricsScanLimit = 5000

// MetricsSnapshot holds a point-in-time view of sync health.
type MetricsSnapshot struct {
	// Sync metrics (within lookback window).
	SyncRuns        int     `json:"sync_runs"`
	SyncSucceeded   int     `json:"sync_succeeded"`
	SyncFailed      int     `json:"sync_failed"`
	SyncFailRate    float64 `json:"sync_fail_rate"`
	HearingsFound   int     `json:"hearings_discovered"`
	HearingsUpdated int     `json:"hearings_updated"`

	BySource map[model.Source]SourceHealth `json:"by_source"`

	// Breaker state.
	Breakers     []resilience.BreakerSnapshot `json:"breakers"`
	OpenBreakers []string                     `json:"open_breakers"`

	// Store totals.
	TotalHearings  int `json:"total_hearings"`
	MergedHearings int `json:"merged_hearings"`

	// Duplicate pairs awaiting manual review. -1 when not collected.
	ReviewBacklog int `json:"review_backlog"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SourceHealth aggregates metric rows for one source.
type SourceHealth struct {
	Runs     int     `json:"runs"`
	Failed   int     `json:"failed"`
	FailRate float64 `json:"fail_rate"`
}

// BreakerReporter exposes circuit breaker state.
type BreakerReporter interface {
	States() []resilience.BreakerSnapshot
}

// ReviewCounter runs a report-only dedup pass.
type ReviewCounter interface {
	Deduplicate(ctx context.Context, committees []string, apply bool) (*syncer.DedupResult, error)
}

// Collector gathers metrics from the store, breakers and dedup engine.
type Collector struct {
	store    store.Store
	breakers BreakerReporter
	review   ReviewCounter
	now      func() time.Time
}

// NewCollector creates a new metrics collector. breakers and review may be
// nil.
func NewCollector(st store.Store, breakers BreakerReporter, review ReviewCounter) *Collector {
	return &Collector{store: st, breakers: breakers, review: review, now: time.Now}
}

// Collect gathers a snapshot of sync health over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		BySource:      make(map[model.Source]SourceHealth),
		OpenBreakers:  []string{},
		ReviewBacklog: -1,
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	metrics, err := c.store.RecentMetrics(ctx, metricsScanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: recent metrics")
	}
	for _, m := range metrics {
		if m.RecordedAt.Before(cutoff) {
			continue
		}
		snap.SyncRuns++
		snap.HearingsFound += m.Discovered
		snap.HearingsUpdated += m.Updated

		sh := snap.BySource[m.Source]
		sh.Runs++
		if m.Success {
			snap.SyncSucceeded++
		} else {
			snap.SyncFailed++
			sh.Failed++
		}
		snap.BySource[m.Source] = sh
	}
	if snap.SyncRuns > 0 {
		snap.SyncFailRate = float64(snap.SyncFailed) / float64(snap.SyncRuns)
	}
	for src, sh := range snap.BySource {
		sh.FailRate = float64(sh.Failed) / float64(sh.Runs)
		snap.BySource[src] = sh
	}

	if c.breakers != nil {
		snap.Breakers = c.breakers.States()
		for _, b := range snap.Breakers {
			if b.State == resilience.CircuitOpen.String() {
				snap.OpenBreakers = append(snap.OpenBreakers, b.Source)
			}
		}
	}

	stats, err := c.store.Statistics(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: statistics")
	}
	snap.TotalHearings = stats.TotalHearings
	snap.MergedHearings = stats.MergedHearings

	if c.review != nil {
		res, err := c.review.Deduplicate(ctx, nil, false)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: dedup report")
		}
		snap.ReviewBacklog = len(res.Review)
	}

	return snap, nil
}
