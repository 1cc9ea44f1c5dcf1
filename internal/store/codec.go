package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hearing-sync/internal/model"
)

// hearingColumns is the column order used by every hearings_unified select.
var hearingColumns = []string{
	"id", "congress_api_id", "committee_source_id", "committee_code",
	"hearing_title", "hearing_date", "hearing_type", "meeting_status",
	"hearing_time", "location_room", "location_building", "url",
	"source_api", "source_website", "last_api_sync", "last_website_sync",
	"sync_confidence", "streams", "documents", "witnesses", "external_urls",
	"sync_status", "extraction_status", "transcription_status", "review_status",
	"created_at", "updated_at",
}

// insertColumns omits the generated id.
var insertColumns = hearingColumns[1:]

var hearingSelectList = strings.Join(hearingColumns, ", ")

var metricColumns = []string{
	"run_id", "committee_code", "source", "hearings_discovered", "hearings_updated",
	"errors", "execution_time_ms", "success_rate", "success", "recorded_at",
}

var syncConfigColumns = []string{
	"committee_code", "priority_level", "api_enabled", "website_enabled",
	"sync_frequency_hours", "active", "auto_merge_threshold", "review_threshold",
}

type scannable interface {
	Scan(dest ...any) error
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func encodeJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal json column")
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

// hearingValues returns the values for insertColumns.
func hearingValues(h model.HearingRecord) ([]any, error) {
	streams, err := encodeJSON(h.Streams, "{}")
	if err != nil {
		return nil, err
	}
	documents, err := encodeJSON(h.Documents, "[]")
	if err != nil {
		return nil, err
	}
	witnesses, err := encodeJSON(h.Witnesses, "[]")
	if err != nil {
		return nil, err
	}
	urls, err := encodeJSON(h.ExternalURLs, "[]")
	if err != nil {
		return nil, err
	}
	return []any{
		nullString(h.CongressAPIID), nullString(h.CommitteeSourceID), h.CommitteeCode,
		h.Title, h.Date, h.HearingType, h.MeetingStatus,
		h.Time, h.Location.Room, h.Location.Building, h.URL,
		h.SourceAPI, h.SourceWebsite, nullTime(h.LastAPISync), nullTime(h.LastWebsiteSync),
		h.SyncConfidence, streams, documents, witnesses, urls,
		h.SyncStatus, h.ExtractionStatus, h.TranscriptionStatus, h.ReviewStatus,
		h.CreatedAt.UTC(), h.UpdatedAt.UTC(),
	}, nil
}

// scanHearing reads one row selected with hearingSelectList.
func scanHearing(row scannable) (*model.HearingRecord, error) {
	var h model.HearingRecord
	var apiID, sourceID *string
	var streams, documents, witnesses, urls string

	err := row.Scan(
		&h.ID, &apiID, &sourceID, &h.CommitteeCode,
		&h.Title, &h.Date, &h.HearingType, &h.MeetingStatus,
		&h.Time, &h.Location.Room, &h.Location.Building, &h.URL,
		&h.SourceAPI, &h.SourceWebsite, &h.LastAPISync, &h.LastWebsiteSync,
		&h.SyncConfidence, &streams, &documents, &witnesses, &urls,
		&h.SyncStatus, &h.ExtractionStatus, &h.TranscriptionStatus, &h.ReviewStatus,
		&h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if apiID != nil {
		h.CongressAPIID = *apiID
	}
	if sourceID != nil {
		h.CommitteeSourceID = *sourceID
	}
	if err := decodeJSONColumns(&h, streams, documents, witnesses, urls); err != nil {
		return nil, err
	}
	return &h, nil
}

func decodeJSONColumns(h *model.HearingRecord, streams, documents, witnesses, urls string) error {
	cols := []struct {
		name string
		raw  string
		dst  any
	}{
		{"streams", streams, &h.Streams},
		{"documents", documents, &h.Documents},
		{"witnesses", witnesses, &h.Witnesses},
		{"external_urls", urls, &h.ExternalURLs},
	}
	for _, c := range cols {
		if strings.TrimSpace(c.raw) == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return eris.Wrapf(err, "store: unmarshal %s for hearing %d", c.name, h.ID)
		}
	}
	return nil
}

type assignment struct {
	column string
	value  any
}

// updateAssignments turns a partial update into column assignments. Fields
// absent from the update produce no assignment.
func updateAssignments(upd model.HearingUpdate) ([]assignment, error) {
	var out []assignment
	addString := func(col string, v *string) {
		if v != nil {
			out = append(out, assignment{col, *v})
		}
	}
	if upd.CongressAPIID != nil {
		out = append(out, assignment{"congress_api_id", nullString(*upd.CongressAPIID)})
	}
	if upd.CommitteeSourceID != nil {
		out = append(out, assignment{"committee_source_id", nullString(*upd.CommitteeSourceID)})
	}
	addString("hearing_title", upd.Title)
	addString("hearing_date", upd.Date)
	addString("hearing_type", upd.HearingType)
	addString("meeting_status", upd.MeetingStatus)
	addString("hearing_time", upd.Time)
	if upd.Location != nil {
		out = append(out,
			assignment{"location_room", upd.Location.Room},
			assignment{"location_building", upd.Location.Building},
		)
	}
	addString("url", upd.URL)
	if upd.SyncConfidence != nil {
		out = append(out, assignment{"sync_confidence", *upd.SyncConfidence})
	}

	jsonCols := []struct {
		name  string
		set   bool
		value any
		empty string
	}{
		{"streams", upd.Streams != nil, upd.Streams, "{}"},
		{"documents", upd.Documents != nil, upd.Documents, "[]"},
		{"witnesses", upd.Witnesses != nil, upd.Witnesses, "[]"},
		{"external_urls", upd.ExternalURLs != nil, upd.ExternalURLs, "[]"},
	}
	for _, c := range jsonCols {
		if !c.set {
			continue
		}
		raw, err := encodeJSON(c.value, c.empty)
		if err != nil {
			return nil, err
		}
		out = append(out, assignment{c.name, raw})
	}

	addString("sync_status", upd.SyncStatus)
	addString("extraction_status", upd.ExtractionStatus)
	addString("transcription_status", upd.TranscriptionStatus)
	addString("review_status", upd.ReviewStatus)
	return out, nil
}

// provenanceAssignments marks source as a contributor at now.
func provenanceAssignments(source model.Source, now time.Time) []assignment {
	switch source {
	case model.SourceCongressAPI:
		return []assignment{{"source_api", true}, {"last_api_sync", now}}
	case model.SourceWebsite:
		return []assignment{{"source_website", true}, {"last_website_sync", now}}
	default:
		return nil
	}
}

func metricValues(m model.SyncMetric, now time.Time) []any {
	recorded := m.RecordedAt
	if recorded.IsZero() {
		recorded = now
	}
	return []any{
		m.RunID, m.CommitteeCode, string(m.Source), m.Discovered, m.Updated,
		m.Errors, m.ExecutionTimeMS, m.SuccessRate, m.Success, recorded.UTC(),
	}
}

func scanMetric(row scannable) (model.SyncMetric, error) {
	var m model.SyncMetric
	var source string
	err := row.Scan(&m.ID, &m.RunID, &m.CommitteeCode, &source, &m.Discovered, &m.Updated,
		&m.Errors, &m.ExecutionTimeMS, &m.SuccessRate, &m.Success, &m.RecordedAt)
	m.Source = model.Source(source)
	return m, err
}

func syncConfigValues(c model.SyncConfig) []any {
	return []any{
		strings.ToUpper(strings.TrimSpace(c.CommitteeCode)), c.PriorityLevel, c.APIEnabled, c.WebsiteEnabled,
		c.SyncFrequencyHours, c.Active, c.AutoMergeThreshold, c.ReviewThreshold,
	}
}

func scanSyncConfig(row scannable) (model.SyncConfig, error) {
	var c model.SyncConfig
	err := row.Scan(&c.CommitteeCode, &c.PriorityLevel, &c.APIEnabled, &c.WebsiteEnabled,
		&c.SyncFrequencyHours, &c.Active, &c.AutoMergeThreshold, &c.ReviewThreshold)
	return c, err
}

func scanHistory(row scannable) (model.SyncHistory, error) {
	var h model.SyncHistory
	var syncType, changes string
	if err := row.Scan(&h.ID, &h.HearingID, &h.Source, &syncType, &changes, &h.SyncedAt, &h.Success); err != nil {
		return h, err
	}
	h.SyncType = model.SyncType(syncType)
	if changes != "" {
		if err := json.Unmarshal([]byte(changes), &h.Changes); err != nil {
			return h, eris.Wrapf(err, "store: unmarshal history %d", h.ID)
		}
	}
	return h, nil
}
