package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
	"github.com/sells-group/hearing-sync/internal/resilience"
	"github.com/sells-group/hearing-sync/internal/syncer"
)

func sampleRun() *syncer.RunResult {
	return &syncer.RunResult{
		RunID:    "3f2b8c1e-0000-4000-8000-000000000000",
		Duration: 1500 * time.Millisecond,
		Committees: map[string]*syncer.CommitteeResult{
			"SSCI": {
				CommitteeCode: "SSCI",
				API:           &syncer.SyncResult{Skipped: true},
			},
			"SCOM": {
				CommitteeCode: "SCOM",
				API:           &syncer.SyncResult{Discovered: 3, Updated: 1, Success: true},
				Website:       &syncer.SyncResult{ErrorMessage: "boom"},
			},
		},
		Dedup: &syncer.DedupResult{
			WindowStart: "2025-01-09",
			Scanned:     12,
			Report:      dedup.Report{TotalMatches: 2, AverageSimilarity: 0.85},
			Merged:      1,
			Applied:     true,
			Review: []dedup.Match{{
				PrimaryID: 4, SecondaryID: 9, CommitteeCode: "SCOM", SimilarityScore: 0.78,
				MatchFactors: dedup.Factors{Title: 0.6, Date: 1, Witness: 0.5},
			}},
		},
	}
}

func TestFormatRunResult(t *testing.T) {
	var buf bytes.Buffer
	formatRunResult(&buf, sampleRun())
	out := buf.String()

	assert.Contains(t, out, "3f2b8c1e")
	assert.NotContains(t, out, "3f2b8c1e-0000")
	assert.Contains(t, out, "+3 ~1 !0")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "skipped")
	assert.Regexp(t, `SCOM\s+\+3 ~1 !0\s+failed\s+error`, out)
	assert.Regexp(t, `SSCI\s+skipped\s+-\s+ok`, out)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("SCOM")), bytes.Index(buf.Bytes(), []byte("SSCI")))

	assert.Contains(t, out, "Merged:")
	assert.Contains(t, out, "title=0.60 date=1.00 witness=0.50")
}

func TestFormatRunResult_MetricsError(t *testing.T) {
	res := &syncer.RunResult{Committees: map[string]*syncer.CommitteeResult{}, MetricsError: "disk full"}
	var buf bytes.Buffer
	formatRunResult(&buf, res)
	assert.Contains(t, buf.String(), "metrics not recorded: disk full")
}

func TestFormatDedupResult_ReportOnly(t *testing.T) {
	var buf bytes.Buffer
	formatDedupResult(&buf, &syncer.DedupResult{Scanned: 4, Report: dedup.Report{}})
	out := buf.String()

	assert.Contains(t, out, "Hearings scanned:")
	assert.NotContains(t, out, "Merged:")
	assert.NotContains(t, out, "Average similarity")
	assert.NotContains(t, out, "PRIMARY")
}

func TestFormatDedupResult_Error(t *testing.T) {
	var buf bytes.Buffer
	formatDedupResult(&buf, &syncer.DedupResult{Error: "store closed"})
	assert.Equal(t, "Dedup failed: store closed\n", buf.String())
}

func TestFormatStatus(t *testing.T) {
	st := &syncer.Status{
		Stats: &model.Stats{TotalHearings: 10, APIHearings: 7, WebsiteHearings: 5, BothSources: 2, MergedHearings: 1},
		Breakers: []resilience.BreakerSnapshot{
			{Source: "congress_api", State: "closed"},
			{Source: "website_scraper", State: "open", Failures: 5},
		},
		Sources: map[model.Source]syncer.SourceStatus{
			model.SourceCongressAPI: {Configured: true, Usable: true, Runs: 4, AvgSuccessRate: 1},
			model.SourceWebsite:     {Configured: true, Runs: 4, Failures: 4},
		},
	}

	var buf bytes.Buffer
	formatStatus(&buf, st)
	out := buf.String()

	assert.Regexp(t, `Hearings:\s+10`, out)
	assert.Regexp(t, `congress_api\s+true\s+closed\s+0\s+4\s+0\s+100%`, out)
	assert.Regexp(t, `website_scraper\s+true\s+open\s+5\s+4\s+4\s+0%`, out)
}

func TestFormatSyncConfigs(t *testing.T) {
	var buf bytes.Buffer
	formatSyncConfigs(&buf, []model.SyncConfig{
		{CommitteeCode: "SCOM", PriorityLevel: 1, APIEnabled: true, WebsiteEnabled: true, SyncFrequencyHours: 24, Active: true},
	})
	assert.Regexp(t, `SCOM\s+1\s+true\s+true\s+24\s+true`, buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, sampleRun()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "3f2b8c1e-0000-4000-8000-000000000000", decoded["run_id"])
	assert.Contains(t, buf.String(), "\n  ")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc", truncateID("abc"))
	assert.Equal(t, "12345678", truncateID("1234567890"))
}
