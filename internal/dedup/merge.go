package dedup

import (
	"strings"
	"time"

	"github.com/sells-group/hearing-sync/internal/model"
)

// Merge folds secondary into primary and returns the merged record.
// Primary wins ties, so Merge is not commutative; callers pick the primary
// deliberately. Neither input is modified.
func Merge(primary, secondary model.HearingRecord, confidence float64, now time.Time) model.HearingRecord {
	out := primary.Clone()

	// Source-priority fields.
	out.CongressAPIID = preferAPI(primary.CongressAPIID, secondary.CongressAPIID, primary.SourceAPI, secondary.SourceAPI)
	out.HearingType = preferAPI(primary.HearingType, secondary.HearingType, primary.SourceAPI, secondary.SourceAPI)
	out.MeetingStatus = preferAPI(primary.MeetingStatus, secondary.MeetingStatus, primary.SourceAPI, secondary.SourceAPI)

	out.Streams = mergeStreams(primary.Streams, secondary.Streams)
	out.Documents = mergeDescriptors(primary.Documents, secondary.Documents)
	out.Witnesses = mergeDescriptors(primary.Witnesses, secondary.Witnesses)
	out.ExternalURLs = mergeURLs(primary.ExternalURLs, secondary.ExternalURLs)

	fill(&out.CommitteeSourceID, secondary.CommitteeSourceID)
	fill(&out.CommitteeCode, secondary.CommitteeCode)
	fill(&out.Title, secondary.Title)
	fill(&out.Date, secondary.Date)
	fill(&out.Time, secondary.Time)
	fill(&out.URL, secondary.URL)
	fill(&out.SyncStatus, secondary.SyncStatus)
	fill(&out.ExtractionStatus, secondary.ExtractionStatus)
	fill(&out.TranscriptionStatus, secondary.TranscriptionStatus)
	fill(&out.ReviewStatus, secondary.ReviewStatus)
	if out.Location.IsZero() {
		out.Location = secondary.Location
	}
	if out.LastAPISync == nil && secondary.LastAPISync != nil {
		t := *secondary.LastAPISync
		out.LastAPISync = &t
	}
	if out.LastWebsiteSync == nil && secondary.LastWebsiteSync != nil {
		t := *secondary.LastWebsiteSync
		out.LastWebsiteSync = &t
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = secondary.CreatedAt
	}

	out.SyncConfidence = confidence
	out.SourceAPI = primary.SourceAPI || secondary.SourceAPI
	out.SourceWebsite = primary.SourceWebsite || secondary.SourceWebsite
	out.UpdatedAt = now
	return out
}

// preferAPI takes the value from the API-sourced side. When both or neither
// side is API-sourced the first non-empty value wins, primary first.
func preferAPI(p, s string, pAPI, sAPI bool) string {
	if sAPI && !pAPI && strings.TrimSpace(s) != "" {
		return s
	}
	if strings.TrimSpace(p) != "" {
		return p
	}
	return s
}

func fill(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = v
	}
}

func mergeStreams(p, s map[string]string) map[string]string {
	out := make(map[string]string, len(p)+len(s))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range p {
		out[k] = v
	}
	return out
}

// mergeDescriptors concatenates both lists and keeps the first descriptor per key.
func mergeDescriptors(p, s []model.Descriptor) []model.Descriptor {
	out := make([]model.Descriptor, 0, len(p)+len(s))
	seen := make(map[string]bool, len(p)+len(s))
	for _, list := range [][]model.Descriptor{p, s} {
		for _, d := range list {
			k := d.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			cp := make(model.Descriptor, len(d))
			for dk, dv := range d {
				cp[dk] = dv
			}
			out = append(out, cp)
		}
	}
	return out
}

func mergeURLs(p, s []string) []string {
	out := make([]string, 0, len(p)+len(s))
	seen := make(map[string]bool, len(p)+len(s))
	for _, list := range [][]string{p, s} {
		for _, u := range list {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
