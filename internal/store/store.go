// Package store persists unified hearing records, their sync audit trail,
// per-committee sync configuration and sync metrics.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
)

// ErrNotFound is returned when a hearing id does not exist.
var ErrNotFound = eris.New("store: hearing not found")

// MergeSource is the sync_history source recorded for merges.
const MergeSource = "dedup_engine"

// Candidate is a stored record that may duplicate an incoming one.
type Candidate struct {
	Record     model.HearingRecord `json:"record"`
	Similarity float64             `json:"similarity"`
}

// Store defines the persistence interface for the hearing sync subsystem.
type Store interface {
	// Hearings
	Insert(ctx context.Context, rec model.HearingRecord, source model.Source) (int64, error)
	Update(ctx context.Context, id int64, upd model.HearingUpdate, source model.Source) error
	Get(ctx context.Context, id int64) (*model.HearingRecord, error)
	ListRecent(ctx context.Context, since time.Time, committees []string) ([]model.HearingRecord, error)
	FindPotentialDuplicates(ctx context.Context, candidate model.HearingRecord) ([]Candidate, error)
	Merge(ctx context.Context, primaryID, secondaryID int64, confidence float64) error
	History(ctx context.Context, hearingID int64) ([]model.SyncHistory, error)
	Statistics(ctx context.Context) (*model.Stats, error)

	// Sync configuration
	UpsertSyncConfig(ctx context.Context, cfg model.SyncConfig) error
	UpsertSyncConfigs(ctx context.Context, cfgs []model.SyncConfig) (int, error)
	ListSyncConfigs(ctx context.Context, activeOnly bool) ([]model.SyncConfig, error)

	// Metrics
	RecordMetrics(ctx context.Context, metrics []model.SyncMetric) error
	RecentMetrics(ctx context.Context, limit int) ([]model.SyncMetric, error)
	LastSuccessfulSync(ctx context.Context, committeeCode string, source model.Source) (*time.Time, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// rankCandidates scores records against candidate and orders them by
// descending similarity. Ties keep the lower id first.
func rankCandidates(candidate model.HearingRecord, records []model.HearingRecord) []Candidate {
	out := make([]Candidate, 0, len(records))
	for _, r := range records {
		out = append(out, Candidate{Record: r, Similarity: dedup.Similarity(candidate, r)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	return out
}

// prepareInsert fills defaults and provenance on a record about to be created.
func prepareInsert(rec model.HearingRecord, source model.Source, now time.Time) (model.HearingRecord, error) {
	if !source.Valid() {
		return rec, eris.Errorf("store: unknown source %q", source)
	}
	if err := rec.Validate(); err != nil {
		return rec, eris.Wrap(err, "store: insert")
	}
	rec = rec.Clone()
	markSource(&rec, source, now)
	if rec.SyncConfidence == 0 {
		rec.SyncConfidence = source.DefaultConfidence()
	}
	if rec.SyncStatus == "" {
		rec.SyncStatus = model.SyncStatusSynced
	}
	if rec.ExtractionStatus == "" {
		rec.ExtractionStatus = model.StatusNotStarted
	}
	if rec.TranscriptionStatus == "" {
		rec.TranscriptionStatus = model.StatusNotStarted
	}
	if rec.ReviewStatus == "" {
		rec.ReviewStatus = model.ReviewStatusPending
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec, nil
}

func markSource(rec *model.HearingRecord, source model.Source, now time.Time) {
	t := now
	switch source {
	case model.SourceCongressAPI:
		rec.SourceAPI = true
		rec.LastAPISync = &t
	case model.SourceWebsite:
		rec.SourceWebsite = true
		rec.LastWebsiteSync = &t
	}
}

// createChanges is the history snapshot written for a new record.
func createChanges(rec model.HearingRecord) map[string]any {
	m := map[string]any{
		"committee_code":  rec.CommitteeCode,
		"hearing_title":   rec.Title,
		"hearing_date":    rec.Date,
		"sync_confidence": rec.SyncConfidence,
	}
	if rec.CongressAPIID != "" {
		m["congress_api_id"] = rec.CongressAPIID
	}
	if rec.CommitteeSourceID != "" {
		m["committee_source_id"] = rec.CommitteeSourceID
	}
	return m
}

// mergeChanges is the history snapshot written for a merge.
func mergeChanges(primaryID, secondaryID int64, confidence float64) map[string]any {
	return map[string]any{
		"primary_id":   primaryID,
		"secondary_id": secondaryID,
		"confidence":   confidence,
	}
}

func validateMerge(primary, secondary *model.HearingRecord) error {
	if primary.ID == secondary.ID {
		return eris.Errorf("store: cannot merge hearing %d into itself", primary.ID)
	}
	if primary.IsMerged() {
		return eris.Errorf("store: primary hearing %d is already merged (%s)", primary.ID, primary.SyncStatus)
	}
	if secondary.IsMerged() {
		return eris.Errorf("store: secondary hearing %d is already merged (%s)", secondary.ID, secondary.SyncStatus)
	}
	return nil
}
