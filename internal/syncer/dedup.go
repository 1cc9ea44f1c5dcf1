package syncer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
)

// Deduplicate scans active hearings dated within the dedup window for the
// given committees (all committees when empty). With apply set, auto-merge
// matches are merged; manual-review matches are only reported.
func (o *Orchestrator) Deduplicate(ctx context.Context, committees []string, apply bool) (*DedupResult, error) {
	since := o.now().UTC().AddDate(0, 0, -o.cfg.DedupWindowDays)
	codes := uniqueCodes(committees)

	o.storeMu.Lock()
	defer o.storeMu.Unlock()

	records, err := o.store.ListRecent(ctx, since, codes)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: list recent hearings")
	}

	matches := o.currentEngine(ctx).FindDuplicates(records)
	res := &DedupResult{
		WindowStart: since.Format(model.DateLayout),
		Scanned:     len(records),
		Report:      dedup.BuildReport(matches),
		Review:      []dedup.Match{},
		Applied:     apply,
	}

	byID := make(map[int64]model.HearingRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	merged := make(map[int64]bool)

	for _, m := range matches {
		switch m.RecommendedAction {
		case dedup.ActionManualReview:
			res.Review = append(res.Review, m)
		case dedup.ActionAutoMerge:
			if !apply {
				continue
			}
			if merged[m.PrimaryID] || merged[m.SecondaryID] {
				continue
			}
			primary, secondary := pickPrimary(byID[m.PrimaryID], byID[m.SecondaryID])
			log := o.log.With(
				zap.Int64("primary_id", primary.ID),
				zap.Int64("secondary_id", secondary.ID),
				zap.Float64("similarity", m.SimilarityScore),
			)
			if err := o.store.Merge(ctx, primary.ID, secondary.ID, m.SimilarityScore); err != nil {
				res.MergeErrors++
				log.Error("auto-merge failed", zap.Error(err))
				continue
			}
			merged[secondary.ID] = true
			res.Merged++
			log.Info("auto-merged duplicate hearings")
		}
	}

	o.log.Info("dedup pass complete",
		zap.Int("scanned", res.Scanned),
		zap.Int("matches", len(matches)),
		zap.Int("merged", res.Merged),
		zap.Int("review", len(res.Review)),
	)
	return res, nil
}

// currentEngine layers the thresholds stored on sync configs over the
// engine's own, so edits made while the process runs apply to the next pass.
// The caller holds storeMu.
func (o *Orchestrator) currentEngine(ctx context.Context) *dedup.Engine {
	configs, err := o.store.ListSyncConfigs(ctx, false)
	if err != nil {
		o.log.Warn("could not load committee thresholds; using startup values", zap.Error(err))
		return o.engine
	}
	overrides := make(map[string]dedup.Thresholds)
	for _, c := range configs {
		if c.AutoMergeThreshold <= 0 && c.ReviewThreshold <= 0 {
			continue
		}
		overrides[c.CommitteeCode] = dedup.Thresholds{AutoMerge: c.AutoMergeThreshold, Review: c.ReviewThreshold}
	}
	if len(overrides) == 0 {
		return o.engine
	}
	return o.engine.Overlay(overrides)
}

// pickPrimary keeps the record with higher confidence, then the one
// discovered first.
func pickPrimary(a, b model.HearingRecord) (model.HearingRecord, model.HearingRecord) {
	if b.SyncConfidence > a.SyncConfidence {
		return b, a
	}
	if b.SyncConfidence == a.SyncConfidence && b.ID < a.ID {
		return b, a
	}
	return a, b
}
