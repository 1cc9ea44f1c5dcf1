package model

import (
	"reflect"
	"strings"
)

// HearingUpdate is a partial update to a HearingRecord. A nil field is left
// untouched by the store; it is never interpreted as "clear this column".
type HearingUpdate struct {
	CongressAPIID     *string
	CommitteeSourceID *string
	Title             *string
	Date              *string
	HearingType       *string
	MeetingStatus     *string
	Time              *string
	Location          *Location
	URL               *string
	SyncConfidence    *float64

	Streams      map[string]string
	Documents    []Descriptor
	Witnesses    []Descriptor
	ExternalURLs []string

	SyncStatus          *string
	ExtractionStatus    *string
	TranscriptionStatus *string
	ReviewStatus        *string
}

// NewUpdate returns the update that turns before into after. Fields that
// are equal on both sides, or empty on the after side, are omitted.
func NewUpdate(before, after HearingRecord) HearingUpdate {
	var u HearingUpdate
	u.CongressAPIID = changedString(before.CongressAPIID, after.CongressAPIID)
	u.CommitteeSourceID = changedString(before.CommitteeSourceID, after.CommitteeSourceID)
	u.Title = changedString(before.Title, after.Title)
	u.Date = changedString(before.Date, after.Date)
	u.HearingType = changedString(before.HearingType, after.HearingType)
	u.MeetingStatus = changedString(before.MeetingStatus, after.MeetingStatus)
	u.Time = changedString(before.Time, after.Time)
	u.URL = changedString(before.URL, after.URL)
	u.SyncStatus = changedString(before.SyncStatus, after.SyncStatus)
	u.ExtractionStatus = changedString(before.ExtractionStatus, after.ExtractionStatus)
	u.TranscriptionStatus = changedString(before.TranscriptionStatus, after.TranscriptionStatus)
	u.ReviewStatus = changedString(before.ReviewStatus, after.ReviewStatus)

	if !after.Location.IsZero() && after.Location != before.Location {
		loc := after.Location
		u.Location = &loc
	}
	if after.SyncConfidence != before.SyncConfidence {
		c := after.SyncConfidence
		u.SyncConfidence = &c
	}
	if len(after.Streams) > 0 && !reflect.DeepEqual(before.Streams, after.Streams) {
		u.Streams = after.Streams
	}
	if len(after.Documents) > 0 && !reflect.DeepEqual(before.Documents, after.Documents) {
		u.Documents = after.Documents
	}
	if len(after.Witnesses) > 0 && !reflect.DeepEqual(before.Witnesses, after.Witnesses) {
		u.Witnesses = after.Witnesses
	}
	if len(after.ExternalURLs) > 0 && !reflect.DeepEqual(before.ExternalURLs, after.ExternalURLs) {
		u.ExternalURLs = after.ExternalURLs
	}
	return u
}

func changedString(before, after string) *string {
	if strings.TrimSpace(after) == "" || before == after {
		return nil
	}
	v := after
	return &v
}

// IsEmpty reports whether the update touches no fields.
func (u HearingUpdate) IsEmpty() bool {
	return len(u.Changes()) == 0
}

// Changes returns the supplied fields keyed by column name. It is the
// snapshot written to sync_history.
func (u HearingUpdate) Changes() map[string]any {
	m := make(map[string]any)
	putString := func(k string, v *string) {
		if v != nil {
			m[k] = *v
		}
	}
	putString("congress_api_id", u.CongressAPIID)
	putString("committee_source_id", u.CommitteeSourceID)
	putString("hearing_title", u.Title)
	putString("hearing_date", u.Date)
	putString("hearing_type", u.HearingType)
	putString("meeting_status", u.MeetingStatus)
	putString("hearing_time", u.Time)
	putString("url", u.URL)
	putString("sync_status", u.SyncStatus)
	putString("extraction_status", u.ExtractionStatus)
	putString("transcription_status", u.TranscriptionStatus)
	putString("review_status", u.ReviewStatus)
	if u.Location != nil {
		m["location"] = *u.Location
	}
	if u.SyncConfidence != nil {
		m["sync_confidence"] = *u.SyncConfidence
	}
	if u.Streams != nil {
		m["streams"] = u.Streams
	}
	if u.Documents != nil {
		m["documents"] = u.Documents
	}
	if u.Witnesses != nil {
		m["witnesses"] = u.Witnesses
	}
	if u.ExternalURLs != nil {
		m["external_urls"] = u.ExternalURLs
	}
	return m
}

// Apply returns a copy of h with the update's supplied fields set.
func (u HearingUpdate) Apply(h HearingRecord) HearingRecord {
	out := h.Clone()
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&out.CongressAPIID, u.CongressAPIID)
	setString(&out.CommitteeSourceID, u.CommitteeSourceID)
	setString(&out.Title, u.Title)
	setString(&out.Date, u.Date)
	setString(&out.HearingType, u.HearingType)
	setString(&out.MeetingStatus, u.MeetingStatus)
	setString(&out.Time, u.Time)
	setString(&out.URL, u.URL)
	setString(&out.SyncStatus, u.SyncStatus)
	setString(&out.ExtractionStatus, u.ExtractionStatus)
	setString(&out.TranscriptionStatus, u.TranscriptionStatus)
	setString(&out.ReviewStatus, u.ReviewStatus)
	if u.Location != nil {
		out.Location = *u.Location
	}
	if u.SyncConfidence != nil {
		out.SyncConfidence = *u.SyncConfidence
	}
	if u.Streams != nil {
		out.Streams = u.Streams
	}
	if u.Documents != nil {
		out.Documents = u.Documents
	}
	if u.Witnesses != nil {
		out.Witnesses = u.Witnesses
	}
	if u.ExternalURLs != nil {
		out.ExternalURLs = u.ExternalURLs
	}
	return out
}
