package dedup

import (
	"math"
	"sort"
)

// reportTopN is how many matches a Report lists for operator review.
const reportTopN = 10

// Report summarises a deduplication run.
type Report struct {
	TotalMatches      int                     `json:"total_matches"`
	ByAction          map[Action]int          `json:"by_action"`
	ByConfidence      map[ConfidenceLevel]int `json:"by_confidence"`
	AverageSimilarity float64                 `json:"average_similarity"`
	TopMatches        []Match                 `json:"top_matches"`
}

// BuildReport aggregates matches by action and confidence and keeps the
// highest-scoring ten.
func BuildReport(matches []Match) Report {
	r := Report{
		TotalMatches: len(matches),
		ByAction:     make(map[Action]int),
		ByConfidence: make(map[ConfidenceLevel]int),
		TopMatches:   []Match{},
	}
	if len(matches) == 0 {
		return r
	}

	var sum float64
	for _, m := range matches {
		r.ByAction[m.RecommendedAction]++
		r.ByConfidence[m.ConfidenceLevel]++
		sum += m.SimilarityScore
	}
	r.AverageSimilarity = math.Round(sum/float64(len(matches))*1e6) / 1e6

	sorted := append([]Match(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SimilarityScore > sorted[j].SimilarityScore
	})
	if len(sorted) > reportTopN {
		sorted = sorted[:reportTopN]
	}
	r.TopMatches = sorted
	return r
}
