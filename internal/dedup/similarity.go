package dedup

import (
	"math"
	"strings"

	"github.com/sells-group/hearing-sync/internal/model"
)

// Factor weights. They sum to 1.0.
const (
	WeightTitle     = 0.40
	WeightDate      = 0.30
	WeightCommittee = 0.10
	WeightTime      = 0.10
	WeightLocation  = 0.05
	WeightWitness   = 0.05
)

// Neutral is the score of a factor that cannot be evaluated.
const Neutral = 0.5

// maxPhraseBonus caps the shared-phrase bonus added to the title ratio.
const maxPhraseBonus = 0.20

// quickRejectDays is the largest date gap that still gets full scoring.
const quickRejectDays = 30

// Factors holds the per-factor scores of one comparison.
type Factors struct {
	Title     float64 `json:"title_similarity"`
	Date      float64 `json:"date_proximity"`
	Committee float64 `json:"committee_match"`
	Time      float64 `json:"time_proximity"`
	Location  float64 `json:"location_similarity"`
	Witness   float64 `json:"witness_overlap"`
}

// Total returns the weighted sum, rounded to 6 decimals so boundary scores
// classify deterministically.
func (f Factors) Total() float64 {
	sum := f.Title*WeightTitle +
		f.Date*WeightDate +
		f.Committee*WeightCommittee +
		f.Time*WeightTime +
		f.Location*WeightLocation +
		f.Witness*WeightWitness
	return math.Round(sum*1e6) / 1e6
}

// Map returns the factor scores keyed by name.
func (f Factors) Map() map[string]float64 {
	return map[string]float64{
		"title_similarity":    f.Title,
		"date_proximity":      f.Date,
		"committee_match":     f.Committee,
		"time_proximity":      f.Time,
		"location_similarity": f.Location,
		"witness_overlap":     f.Witness,
	}
}

// Score computes every factor for a pair of hearings. It is symmetric in a and b.
func Score(a, b model.HearingRecord) Factors {
	return Factors{
		Title:     TitleSimilarity(a.Title, b.Title),
		Date:      DateProximity(a, b),
		Committee: CommitteeMatch(a.CommitteeCode, b.CommitteeCode),
		Time:      TimeProximity(a, b),
		Location:  LocationSimilarity(a.Location, b.Location),
		Witness:   WitnessOverlap(a.WitnessNames(), b.WitnessNames()),
	}
}

// Similarity returns the weighted similarity of a and b in [0,1].
func Similarity(a, b model.HearingRecord) float64 {
	return Score(a, b).Total()
}

// TitleSimilarity compares normalized titles with a word-level LCS ratio
// and adds up to 0.20 for shared two- and three-word phrases.
func TitleSimilarity(a, b string) float64 {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	ta, tb := contentTokens(na), contentTokens(nb)
	if len(ta) == 0 || len(tb) == 0 {
		// Titles made only of event words ("Hearing", "Markup") compare verbatim.
		if ra := fold(strings.TrimSpace(a)); ra != "" && ra == fold(strings.TrimSpace(b)) {
			return 1.0
		}
		return 0
	}

	ratio := 2 * float64(lcs(ta, tb)) / float64(len(ta)+len(tb))

	pa, pb := phrases(ta), phrases(tb)
	if smaller := min(len(pa), len(pb)); smaller > 0 {
		shared := 0
		for p := range pa {
			if pb[p] {
				shared++
			}
		}
		ratio += maxPhraseBonus * float64(shared) / float64(smaller)
	}
	return math.Min(ratio, 1.0)
}

// lcs returns the length of the longest common subsequence of two token lists.
func lcs(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// phrases returns the set of two- and three-word phrases in tokens.
func phrases(tokens []string) map[string]bool {
	set := make(map[string]bool)
	for n := 2; n <= 3; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			set[strings.Join(tokens[i:i+n], " ")] = true
		}
	}
	return set
}

// DateProximity scores the gap between two hearing dates with a stepped decay.
func DateProximity(a, b model.HearingRecord) float64 {
	da, okA := a.ParsedDate()
	db, okB := b.ParsedDate()
	if !okA || !okB {
		return Neutral
	}
	days := math.Abs(da.Sub(db).Hours() / 24)
	switch {
	case days == 0:
		return 1.0
	case days <= 1:
		return 0.8
	case days <= 3:
		return 0.6
	case days <= 7:
		return 0.4
	case days <= 14:
		return 0.2
	default:
		return 0
	}
}

// CommitteeMatch is 1 when the codes match case-insensitively.
func CommitteeMatch(a, b string) float64 {
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return 1.0
	}
	return 0
}

// TimeProximity compares the time-of-day tokens of two hearings.
func TimeProximity(a, b model.HearingRecord) float64 {
	ta, okA := hearingTime(a)
	tb, okB := hearingTime(b)
	switch {
	case !okA || !okB:
		return Neutral
	case ta == tb:
		return 1.0
	default:
		return 0.3
	}
}

// LocationSimilarity averages room and building matches over the
// components at least one side has data for.
func LocationSimilarity(a, b model.Location) float64 {
	if a.IsZero() && b.IsZero() {
		return Neutral
	}
	var total, n float64
	if ra, rb := normalizeRoom(a.Room), normalizeRoom(b.Room); ra != "" || rb != "" {
		n++
		if containsEither(ra, rb) {
			total++
		}
	}
	if ba, bb := buildingKey(a.Building), buildingKey(b.Building); ba != "" || bb != "" {
		n++
		if containsEither(ba, bb) {
			total++
		}
	}
	if n == 0 {
		return Neutral
	}
	return total / n
}

func buildingKey(s string) string {
	if c := canonicalBuilding(s); c != "" {
		return strings.ToLower(c)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// containsEither reports whether both strings are non-empty and one contains the other.
func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// WitnessOverlap is the Jaccard similarity of two witness name sets.
func WitnessOverlap(a, b []string) float64 {
	sa, sb := toSet(a), toSet(b)
	switch {
	case len(sa) == 0 && len(sb) == 0:
		return Neutral
	case len(sa) == 0 || len(sb) == 0:
		return 0.2
	}
	inter := 0
	for k := range sa {
		if sb[k] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			set[it] = true
		}
	}
	return set
}

// QuickReject reports whether a pair can be skipped without scoring: the
// committees differ, or both dates parse and are more than 30 days apart.
// Unparseable dates never cause a rejection.
func QuickReject(a, b model.HearingRecord) bool {
	if CommitteeMatch(a.CommitteeCode, b.CommitteeCode) == 0 {
		return true
	}
	da, okA := a.ParsedDate()
	db, okB := b.ParsedDate()
	if !okA || !okB {
		return false
	}
	return math.Abs(da.Sub(db).Hours()/24) > quickRejectDays
}
