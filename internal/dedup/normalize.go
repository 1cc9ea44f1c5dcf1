package dedup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/hearing-sync/internal/model"
)

var (
	// Event-kind tokens plus an optional trailing number ("Session 12", "Hearing No. 3").
	eventTokenRe = regexp.MustCompile(`\b(hearings?|markups?|meetings?|sessions?)\b(\s+(no\.?\s*)?\d+)?`)
	articleRe    = regexp.MustCompile(`\b(a|an|the)\b`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	multiSpaceRe = regexp.MustCompile(`\s+`)

	timeRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?\s?m\b\.?`)
	roomRe = regexp.MustCompile(`(?i)\b(SD|SR|SH|SVC|HC|S|H)\s?-\s?(\d{1,4}[A-Z]?)\b`)
)

// stopWords are dropped before token-level title comparison.
var stopWords = map[string]bool{
	"and": true, "or": true, "of": true, "on": true, "for": true, "to": true,
	"in": true, "at": true, "by": true, "with": true, "from": true, "about": true,
}

// buildings maps a lower-case keyword to the canonical building name.
var buildings = []struct {
	keyword string
	name    string
}{
	{"dirksen", "Dirksen Senate Office Building"},
	{"russell", "Russell Senate Office Building"},
	{"hart", "Hart Senate Office Building"},
	{"visitor center", "Capitol Visitor Center"},
	{"capitol", "Capitol"},
}

// fold lower-cases s and strips diacritics.
func fold(s string) string {
	// transform.Chain keeps internal buffers, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// NormalizeTitle prepares a hearing title for comparison: lower-case and
// accent-folded, with hearing/markup/meeting/session tokens, articles and
// punctuation removed and whitespace collapsed.
func NormalizeTitle(title string) string {
	s := fold(strings.TrimSpace(title))
	if s == "" {
		return ""
	}
	s = eventTokenRe.ReplaceAllString(s, " ")
	s = punctRe.ReplaceAllString(s, " ")
	s = articleRe.ReplaceAllString(s, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// contentTokens splits a normalized title and drops stop words.
func contentTokens(normalized string) []string {
	fields := strings.Fields(normalized)
	out := fields[:0:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

// NormalizeTime extracts the first time-of-day token from text and renders
// it as "3:04 PM". ok is false when no valid token is found.
func NormalizeTime(text string) (string, bool) {
	m := timeRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return "", false
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return "", false
		}
	}
	return fmt.Sprintf("%d:%02d %sM", hour, minute, strings.ToUpper(m[3])), true
}

// hearingTime finds the time of a hearing in its time field, then its
// title, then its location text.
func hearingTime(h model.HearingRecord) (string, bool) {
	for _, text := range []string{h.Time, h.Title, h.Location.String()} {
		if t, ok := NormalizeTime(text); ok {
			return t, true
		}
	}
	return "", false
}

// ParseLocation splits free-text location into a room and building. Text
// with no recognisable room or building is kept verbatim as the building.
func ParseLocation(text string) model.Location {
	text = strings.TrimSpace(multiSpaceRe.ReplaceAllString(text, " "))
	if text == "" {
		return model.Location{}
	}
	var loc model.Location
	if m := roomRe.FindStringSubmatch(text); m != nil {
		loc.Room = strings.ToUpper(m[1]) + "-" + strings.ToUpper(m[2])
	}
	if b := canonicalBuilding(text); b != "" {
		loc.Building = b
	}
	if loc.IsZero() {
		loc.Building = text
	}
	return loc
}

// canonicalBuilding returns the canonical name of a known Senate building
// mentioned in text, or "".
func canonicalBuilding(text string) string {
	lower := strings.ToLower(text)
	for _, b := range buildings {
		if strings.Contains(lower, b.keyword) {
			return b.name
		}
	}
	return ""
}

// normalizeRoom folds "SD 106", "sd-106" and "SD-106" to the same key.
func normalizeRoom(room string) string {
	return strings.NewReplacer(" ", "", "-", "", ".", "").Replace(strings.ToLower(room))
}
