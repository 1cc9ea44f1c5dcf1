package syncer

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
)

// plan says which sources to sync for one committee.
type plan struct {
	api     bool
	website bool
}

// SyncAPI syncs one committee from the Congress.gov API.
func (o *Orchestrator) SyncAPI(ctx context.Context, committeeCode string) *SyncResult {
	code := normalize(committeeCode)
	return o.syncSource(ctx, code, model.SourceCongressAPI, func(ctx context.Context) ([]model.HearingRecord, error) {
		return o.api.GetCommitteeMeetings(ctx, code, o.cfg.APIDaysBack, o.cfg.APIDaysForward)
	})
}

// SyncWebsite syncs one committee from its website.
func (o *Orchestrator) SyncWebsite(ctx context.Context, committeeCode string) *SyncResult {
	code := normalize(committeeCode)
	return o.syncSource(ctx, code, model.SourceWebsite, func(ctx context.Context) ([]model.HearingRecord, error) {
		return o.website.ScrapeCommitteeHearings(ctx, code, o.cfg.WebsiteDaysBack)
	})
}

func (o *Orchestrator) configured(source model.Source) bool {
	if source == model.SourceCongressAPI {
		return o.api != nil
	}
	return o.website != nil
}

// syncSource fetches records for one committee and writes each one as an
// update of its best stored match or as a new hearing. Connector failures
// count against the source's breaker; store failures count as record errors.
func (o *Orchestrator) syncSource(ctx context.Context, code string, source model.Source, fetch func(context.Context) ([]model.HearingRecord, error)) *SyncResult {
	start := o.now()
	res := &SyncResult{CommitteeCode: code, Source: source}
	log := o.log.With(zap.String("committee", code), zap.String("source", string(source)))

	if !o.configured(source) {
		res.Skipped = true
		res.ErrorMessage = "connector not configured"
		return res
	}
	breaker := o.Breaker(source)
	if !breaker.Allow() {
		log.Debug("circuit breaker open, skipping source")
		res.Skipped = true
		res.ErrorMessage = "circuit breaker open"
		return res
	}

	records, err := fetch(ctx)
	if err != nil {
		breaker.RecordFailure()
		res.Errors++
		res.ErrorMessage = err.Error()
		res.Duration = o.now().Sub(start)
		log.Error("connector call failed", zap.Error(err))
		return res
	}
	breaker.RecordSuccess()

	threshold := o.threshold(source)
	var firstErr error
	for _, rec := range records {
		if rec.CommitteeCode == "" {
			rec.CommitteeCode = code
		}
		rec.SyncConfidence = source.DefaultConfidence()

		updated, err := o.write(ctx, rec, source, threshold)
		if err != nil {
			res.Errors++
			if firstErr == nil {
				firstErr = err
			}
			log.Warn("failed to write hearing",
				zap.String("title", rec.Title),
				zap.String("date", rec.Date),
				zap.Error(err),
			)
			continue
		}
		if updated {
			res.Updated++
		} else {
			res.Discovered++
		}
	}

	res.Success = res.Errors == 0
	if firstErr != nil {
		res.ErrorMessage = firstErr.Error()
	}
	res.Duration = o.now().Sub(start)
	log.Info("source sync complete",
		zap.Int("fetched", len(records)),
		zap.Int("discovered", res.Discovered),
		zap.Int("updated", res.Updated),
		zap.Int("errors", res.Errors),
		zap.Duration("elapsed", res.Duration),
	)
	return res
}

// write stores one fetched record. It reports whether an existing hearing
// was updated rather than a new one inserted.
func (o *Orchestrator) write(ctx context.Context, rec model.HearingRecord, source model.Source, threshold float64) (bool, error) {
	o.storeMu.Lock()
	defer o.storeMu.Unlock()

	candidates, err := o.store.FindPotentialDuplicates(ctx, rec)
	if err != nil {
		return false, eris.Wrap(err, "syncer: find duplicates")
	}
	if len(candidates) == 0 || candidates[0].Similarity <= threshold {
		if _, err := o.store.Insert(ctx, rec, source); err != nil {
			return false, eris.Wrap(err, "syncer: insert hearing")
		}
		return false, nil
	}

	existing := candidates[0].Record
	confidence := math.Max(existing.SyncConfidence, source.DefaultConfidence())

	// Fresh data wins unless website data arrives for an API-backed hearing.
	primary, secondary := rec, existing
	if source == model.SourceWebsite && existing.SourceAPI {
		primary, secondary = existing, rec
	}
	merged := dedup.Merge(primary, secondary, confidence, o.now().UTC())

	upd := model.NewUpdate(existing, merged)
	if err := o.store.Update(ctx, existing.ID, upd, source); err != nil {
		return false, eris.Wrapf(err, "syncer: update hearing %d", existing.ID)
	}
	return true, nil
}

// RunFullSync syncs every committee from the API and then its website,
// deduplicates the recent window and records metrics. Committees with a
// sync config follow its source flags. It never returns an error; failures
// are reported per committee.
func (o *Orchestrator) RunFullSync(ctx context.Context, committeeCodes []string) *RunResult {
	codes := uniqueCodes(committeeCodes)
	configs := o.configsByCode(ctx)

	plans := make(map[string]plan, len(codes))
	for _, code := range codes {
		p := plan{api: true, website: true}
		if cfg, ok := configs[code]; ok {
			p = plan{api: cfg.APIEnabled, website: cfg.WebsiteEnabled}
		}
		plans[code] = p
	}
	return o.run(ctx, codes, plans)
}

func (o *Orchestrator) run(ctx context.Context, codes []string, plans map[string]plan) *RunResult {
	start := o.now()
	res := &RunResult{
		RunID:      uuid.NewString(),
		StartedAt:  start.UTC(),
		Committees: make(map[string]*CommitteeResult, len(codes)),
	}
	log := o.log.With(zap.String("run_id", res.RunID))
	log.Info("starting sync run", zap.Strings("committees", codes))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, code := range codes {
		p := plans[code]
		g.Go(func() error {
			cr := &CommitteeResult{CommitteeCode: code}
			if p.api {
				cr.API = o.SyncAPI(ctx, code)
			}
			if p.website {
				cr.Website = o.SyncWebsite(ctx, code)
			}
			mu.Lock()
			res.Committees[code] = cr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(codes) > 0 {
		dr, err := o.Deduplicate(ctx, codes, true)
		if err != nil {
			log.Error("dedup pass failed", zap.Error(err))
			dr = &DedupResult{Error: err.Error()}
		}
		res.Dedup = dr
	}

	if err := o.recordMetrics(ctx, res); err != nil {
		log.Error("failed to record sync metrics", zap.Error(err))
		res.MetricsError = err.Error()
	}

	res.Duration = o.now().Sub(start)
	log.Info("sync run complete",
		zap.Int("committees", len(codes)),
		zap.Duration("elapsed", res.Duration),
	)
	return res
}

func (o *Orchestrator) recordMetrics(ctx context.Context, res *RunResult) error {
	now := o.now().UTC()
	var metrics []model.SyncMetric
	for _, code := range sortedKeys(res.Committees) {
		cr := res.Committees[code]
		for _, r := range []*SyncResult{cr.API, cr.Website} {
			if r == nil || r.Skipped {
				continue
			}
			metrics = append(metrics, r.metric(res.RunID, now))
		}
	}
	if len(metrics) == 0 {
		return nil
	}
	o.storeMu.Lock()
	defer o.storeMu.Unlock()
	return o.store.RecordMetrics(ctx, metrics)
}

// configsByCode loads all sync configs. A store failure is logged and
// treated as "no configs".
func (o *Orchestrator) configsByCode(ctx context.Context) map[string]model.SyncConfig {
	o.storeMu.Lock()
	cfgs, err := o.store.ListSyncConfigs(ctx, false)
	o.storeMu.Unlock()
	out := make(map[string]model.SyncConfig, len(cfgs))
	if err != nil {
		o.log.Warn("could not load sync configs, syncing all sources", zap.Error(err))
		return out
	}
	for _, c := range cfgs {
		out[normalize(c.CommitteeCode)] = c
	}
	return out
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func uniqueCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = normalize(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
