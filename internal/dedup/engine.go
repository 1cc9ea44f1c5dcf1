package dedup

import (
	"sort"
	"strings"

	"github.com/sells-group/hearing-sync/internal/model"
)

// ConfidenceLevel buckets a similarity score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Action is the recommended disposition of a duplicate pair.
type Action string

const (
	ActionAutoMerge    Action = "auto_merge"
	ActionManualReview Action = "manual_review"
	ActionIgnore       Action = "ignore"
)

// Default classification thresholds.
const (
	DefaultAutoMergeThreshold = 0.90
	DefaultReviewThreshold    = 0.70
)

// Thresholds gate classification. Review doubles as the reporting floor.
type Thresholds struct {
	AutoMerge float64 `json:"auto_merge" yaml:"auto_merge" mapstructure:"auto_merge"`
	Review    float64 `json:"review" yaml:"review" mapstructure:"review"`
}

// DefaultThresholds returns the 0.90 / 0.70 defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoMerge: DefaultAutoMergeThreshold, Review: DefaultReviewThreshold}
}

// withDefaults fills zero values from the defaults.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.AutoMerge <= 0 {
		t.AutoMerge = d.AutoMerge
	}
	if t.Review <= 0 {
		t.Review = d.Review
	}
	return t
}

// Classify maps a score to a confidence level and action.
func (t Thresholds) Classify(score float64) (ConfidenceLevel, Action) {
	switch {
	case score >= t.AutoMerge:
		return ConfidenceHigh, ActionAutoMerge
	case score >= t.Review:
		return ConfidenceMedium, ActionManualReview
	default:
		return ConfidenceLow, ActionIgnore
	}
}

// Match is a detected duplicate pair. It is never persisted.
type Match struct {
	PrimaryID         int64           `json:"primary_id"`
	SecondaryID       int64           `json:"secondary_id"`
	CommitteeCode     string          `json:"committee_code"`
	SimilarityScore   float64         `json:"similarity_score"`
	ConfidenceLevel   ConfidenceLevel `json:"confidence_level"`
	MatchFactors      Factors         `json:"match_factors"`
	RecommendedAction Action          `json:"recommended_action"`
}

// Engine finds duplicate hearings with pairwise weighted similarity.
type Engine struct {
	thresholds Thresholds
	committee  map[string]Thresholds
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds overrides the global thresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t.withDefaults() }
}

// WithCommitteeThresholds sets per-committee thresholds. Zero fields fall
// back to the global thresholds.
func WithCommitteeThresholds(overrides map[string]Thresholds) Option {
	return func(e *Engine) {
		for code, t := range overrides {
			e.committee[strings.ToUpper(strings.TrimSpace(code))] = t
		}
	}
}

// NewEngine creates a dedup engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		thresholds: DefaultThresholds(),
		committee:  make(map[string]Thresholds),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Overlay returns a copy of the engine whose per-committee thresholds are
// replaced field by field with the non-zero values in overrides. The
// receiver is not modified.
func (e *Engine) Overlay(overrides map[string]Thresholds) *Engine {
	out := &Engine{
		thresholds: e.thresholds,
		committee:  make(map[string]Thresholds, len(e.committee)+len(overrides)),
	}
	for code, t := range e.committee {
		out.committee[code] = t
	}
	for code, o := range overrides {
		code = strings.ToUpper(strings.TrimSpace(code))
		t := out.committee[code]
		if o.AutoMerge > 0 {
			t.AutoMerge = o.AutoMerge
		}
		if o.Review > 0 {
			t.Review = o.Review
		}
		out.committee[code] = t
	}
	return out
}

// ThresholdsFor returns the thresholds in force for a committee.
func (e *Engine) ThresholdsFor(committeeCode string) Thresholds {
	t, ok := e.committee[strings.ToUpper(strings.TrimSpace(committeeCode))]
	if !ok {
		return e.thresholds
	}
	if t.AutoMerge <= 0 {
		t.AutoMerge = e.thresholds.AutoMerge
	}
	if t.Review <= 0 {
		t.Review = e.thresholds.Review
	}
	return t
}

// Compare scores one pair. ok is false when the pair is quick-rejected or
// scores below the review threshold.
func (e *Engine) Compare(a, b model.HearingRecord) (Match, bool) {
	if QuickReject(a, b) {
		return Match{}, false
	}
	factors := Score(a, b)
	score := factors.Total()
	level, action := e.ThresholdsFor(a.CommitteeCode).Classify(score)
	if action == ActionIgnore {
		return Match{}, false
	}
	return Match{
		PrimaryID:         a.ID,
		SecondaryID:       b.ID,
		CommitteeCode:     a.CommitteeCode,
		SimilarityScore:   score,
		ConfidenceLevel:   level,
		MatchFactors:      factors,
		RecommendedAction: action,
	}, true
}

// FindDuplicates compares every unordered pair of records and returns the
// matches at or above the review threshold, best first. Cost is quadratic,
// so callers pass a bounded window of recent hearings.
func (e *Engine) FindDuplicates(records []model.HearingRecord) []Match {
	var matches []Match
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			if m, ok := e.Compare(records[i], records[j]); ok {
				matches = append(matches, m)
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})
	return matches
}
