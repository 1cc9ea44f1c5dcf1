package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src        Source
		want       string
		confidence float64
	}{
		{SourceCongressAPI, "congress_api", 1.0},
		{SourceWebsite, "website_scraper", 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.src))
			assert.True(t, tt.src.Valid())
			assert.InDelta(t, tt.confidence, tt.src.DefaultConfidence(), 1e-9)
		})
	}

	assert.False(t, Source("rss").Valid())
	assert.Zero(t, Source("rss").DefaultConfidence())
}

func TestMergedInto(t *testing.T) {
	t.Parallel()

	status := MergedInto(42)
	assert.Equal(t, "merged_into_42", status)
	assert.True(t, IsMergedStatus(status))
	assert.False(t, IsMergedStatus(SyncStatusSynced))
	assert.True(t, HearingRecord{SyncStatus: status}.IsMerged())
}

func TestDescriptorKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		d    Descriptor
		want string
	}{
		{"title wins", Descriptor{"title": "Opening Statement", "name": "Jane"}, "opening statement"},
		{"name fallback", Descriptor{"name": " Jane Smith "}, "jane smith"},
		{"stable string form", Descriptor{"url": "b", "position": "a"}, "position=a;url=b;"},
		{"empty", Descriptor{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.d.Key())
		})
	}
}

func TestLocation(t *testing.T) {
	t.Parallel()

	assert.True(t, Location{}.IsZero())
	assert.True(t, Location{Room: "  "}.IsZero())
	assert.Equal(t, "SR-253 Russell Senate Office Building",
		Location{Room: "SR-253", Building: "Russell Senate Office Building"}.String())
	assert.Equal(t, "Capitol", Location{Building: "Capitol"}.String())
}

func TestHearingRecord_ParsedDate(t *testing.T) {
	t.Parallel()

	d, ok := HearingRecord{Date: "2025-06-27"}.ParsedDate()
	require.True(t, ok)
	assert.Equal(t, time.June, d.Month())

	_, ok = HearingRecord{Date: "June 27"}.ParsedDate()
	assert.False(t, ok)
}

func TestHearingRecord_Validate(t *testing.T) {
	t.Parallel()

	ok := HearingRecord{CommitteeCode: "SCOM", Title: "Markup", Date: "2025-06-27"}
	require.NoError(t, ok.Validate())

	missingTitle := ok
	missingTitle.Title = " "
	assert.ErrorContains(t, missingTitle.Validate(), "hearing_title")

	missingCommittee := ok
	missingCommittee.CommitteeCode = ""
	assert.ErrorContains(t, missingCommittee.Validate(), "committee_code")

	missingDate := ok
	missingDate.Date = ""
	assert.ErrorContains(t, missingDate.Validate(), "hearing_date")
}

func TestHearingRecord_WitnessNames(t *testing.T) {
	t.Parallel()

	h := HearingRecord{Witnesses: []Descriptor{
		{"name": "Jane Smith"},
		{"title": "no name"},
		{"name": "  JOHN DOE "},
	}}
	assert.Equal(t, []string{"jane smith", "john doe"}, h.WitnessNames())
}

func TestHearingRecord_Clone(t *testing.T) {
	t.Parallel()

	now := time.Now()
	h := HearingRecord{
		Streams:      map[string]string{"isvp": "x"},
		Witnesses:    []Descriptor{{"name": "Jane"}},
		ExternalURLs: []string{"a"},
		LastAPISync:  &now,
	}
	c := h.Clone()
	c.Streams["youtube"] = "y"
	c.Witnesses[0]["name"] = "John"
	c.ExternalURLs[0] = "b"
	*c.LastAPISync = now.Add(time.Hour)

	assert.Len(t, h.Streams, 1)
	assert.Equal(t, "Jane", h.Witnesses[0]["name"])
	assert.Equal(t, "a", h.ExternalURLs[0])
	assert.Equal(t, now, *h.LastAPISync)
}

func TestHearingRecord_HasSource(t *testing.T) {
	t.Parallel()

	h := HearingRecord{SourceAPI: true}
	assert.True(t, h.HasSource(SourceCongressAPI))
	assert.False(t, h.HasSource(SourceWebsite))
	assert.False(t, h.HasSource(Source("other")))
}
