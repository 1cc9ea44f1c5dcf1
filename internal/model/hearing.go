package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Source identifies which connector contributed a hearing record.
type Source string

const (
	SourceCongressAPI Source = "congress_api"
	SourceWebsite     Source = "website_scraper"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	return s == SourceCongressAPI || s == SourceWebsite
}

// DefaultConfidence returns the sync confidence assigned to a record that
// was contributed by this source alone.
func (s Source) DefaultConfidence() float64 {
	switch s {
	case SourceCongressAPI:
		return ConfidenceAPI
	case SourceWebsite:
		return ConfidenceWebsite
	default:
		return 0
	}
}

// Sources lists every known source in priority order.
func Sources() []Source {
	return []Source{SourceCongressAPI, SourceWebsite}
}

const (
	// ConfidenceAPI is the confidence of a record seen only by the Congress.gov API.
	ConfidenceAPI = 1.0
	// ConfidenceWebsite is the confidence of a record seen only on a committee website.
	ConfidenceWebsite = 0.8
)

// Processing pipeline statuses.
const (
	SyncStatusPending   = "pending"
	SyncStatusSynced    = "synced"
	mergedIntoPrefix    = "merged_into_"
	StatusNotStarted    = "not_started"
	ReviewStatusPending = "pending"
)

// MergedInto returns the sync_status value for a record absorbed by primaryID.
func MergedInto(primaryID int64) string {
	return fmt.Sprintf("%s%d", mergedIntoPrefix, primaryID)
}

// IsMergedStatus reports whether a sync_status marks a deactivated record.
func IsMergedStatus(status string) bool {
	return strings.HasPrefix(status, mergedIntoPrefix)
}

// Descriptor describes a document or witness attached to a hearing. Common
// keys are "title", "name", "url", "position" and "organization".
type Descriptor map[string]string

// Key returns the identity used to de-duplicate descriptors: the title, then
// the name, then a stable string form of the whole descriptor.
func (d Descriptor) Key() string {
	if v := strings.TrimSpace(d["title"]); v != "" {
		return strings.ToLower(v)
	}
	if v := strings.TrimSpace(d["name"]); v != "" {
		return strings.ToLower(v)
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(d[k])
		b.WriteByte(';')
	}
	return b.String()
}

// Location is where a hearing takes place.
type Location struct {
	Room     string `json:"room,omitempty"`
	Building string `json:"building,omitempty"`
}

// IsZero reports whether no location data is present.
func (l Location) IsZero() bool {
	return strings.TrimSpace(l.Room) == "" && strings.TrimSpace(l.Building) == ""
}

// String renders the location as free text.
func (l Location) String() string {
	return strings.TrimSpace(strings.TrimSpace(l.Room) + " " + strings.TrimSpace(l.Building))
}

// HearingRecord is the unified hearing entity shared by the store, the
// connectors and the deduplication engine.
//
// CommitteeCode, Title and Date are always present. Everything else is
// optional; the empty value means "unknown".
type HearingRecord struct {
	ID                int64  `json:"id"`
	CongressAPIID     string `json:"congress_api_id,omitempty"`
	CommitteeSourceID string `json:"committee_source_id,omitempty"`

	CommitteeCode string   `json:"committee_code"`
	Title         string   `json:"hearing_title"`
	Date          string   `json:"hearing_date"` // YYYY-MM-DD
	HearingType   string   `json:"hearing_type,omitempty"`
	MeetingStatus string   `json:"meeting_status,omitempty"`
	Time          string   `json:"hearing_time,omitempty"`
	Location      Location `json:"location"`
	URL           string   `json:"url,omitempty"`

	SourceAPI       bool       `json:"source_api"`
	SourceWebsite   bool       `json:"source_website"`
	LastAPISync     *time.Time `json:"last_api_sync,omitempty"`
	LastWebsiteSync *time.Time `json:"last_website_sync,omitempty"`

	SyncConfidence float64 `json:"sync_confidence"`

	Streams      map[string]string `json:"streams"`
	Documents    []Descriptor      `json:"documents"`
	Witnesses    []Descriptor      `json:"witnesses"`
	ExternalURLs []string          `json:"external_urls"`

	SyncStatus          string `json:"sync_status"`
	ExtractionStatus    string `json:"extraction_status"`
	TranscriptionStatus string `json:"transcription_status"`
	ReviewStatus        string `json:"review_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DateLayout is the layout of HearingRecord.Date.
const DateLayout = "2006-01-02"

// ParsedDate parses the hearing date. ok is false when the date is missing or malformed.
func (h HearingRecord) ParsedDate() (time.Time, bool) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(h.Date))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// WitnessNames returns the lower-cased, trimmed witness names.
func (h HearingRecord) WitnessNames() []string {
	names := make([]string, 0, len(h.Witnesses))
	for _, w := range h.Witnesses {
		if n := strings.ToLower(strings.TrimSpace(w["name"])); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// HasSource reports whether the record carries data from src.
func (h HearingRecord) HasSource(src Source) bool {
	switch src {
	case SourceCongressAPI:
		return h.SourceAPI
	case SourceWebsite:
		return h.SourceWebsite
	default:
		return false
	}
}

// IsMerged reports whether the record has been absorbed into another record.
func (h HearingRecord) IsMerged() bool {
	return IsMergedStatus(h.SyncStatus)
}

// Validate checks the always-present fields.
func (h HearingRecord) Validate() error {
	switch {
	case strings.TrimSpace(h.CommitteeCode) == "":
		return eris.New("model: committee_code is required")
	case strings.TrimSpace(h.Title) == "":
		return eris.New("model: hearing_title is required")
	case strings.TrimSpace(h.Date) == "":
		return eris.New("model: hearing_date is required")
	}
	return nil
}

// Clone returns a deep copy of h.
func (h HearingRecord) Clone() HearingRecord {
	c := h
	if h.Streams != nil {
		c.Streams = make(map[string]string, len(h.Streams))
		for k, v := range h.Streams {
			c.Streams[k] = v
		}
	}
	c.Documents = cloneDescriptors(h.Documents)
	c.Witnesses = cloneDescriptors(h.Witnesses)
	if h.ExternalURLs != nil {
		c.ExternalURLs = append([]string(nil), h.ExternalURLs...)
	}
	if h.LastAPISync != nil {
		t := *h.LastAPISync
		c.LastAPISync = &t
	}
	if h.LastWebsiteSync != nil {
		t := *h.LastWebsiteSync
		c.LastWebsiteSync = &t
	}
	return c
}

func cloneDescriptors(in []Descriptor) []Descriptor {
	if in == nil {
		return nil
	}
	out := make([]Descriptor, len(in))
	for i, d := range in {
		cp := make(Descriptor, len(d))
		for k, v := range d {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
