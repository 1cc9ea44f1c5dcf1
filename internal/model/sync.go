package model

import "time"

// SyncType classifies a sync_history entry.
type SyncType string

const (
	SyncTypeCreate SyncType = "create"
	SyncTypeUpdate SyncType = "update"
	SyncTypeMerge  SyncType = "merge"
)

// SyncHistory is one append-only audit row.
type SyncHistory struct {
	ID        int64          `json:"id"`
	HearingID int64          `json:"hearing_id"`
	Source    string         `json:"sync_source"`
	SyncType  SyncType       `json:"sync_type"`
	Changes   map[string]any `json:"changes"`
	SyncedAt  time.Time      `json:"synced_at"`
	Success   bool           `json:"success"`
}

// SyncConfig holds per-committee scheduling parameters. It is changed only
// by administrative commands, never by sync runs.
type SyncConfig struct {
	CommitteeCode      string `json:"committee_code" yaml:"committee_code"`
	PriorityLevel      int    `json:"priority_level" yaml:"priority_level"`
	APIEnabled         bool   `json:"api_enabled" yaml:"api_enabled"`
	WebsiteEnabled     bool   `json:"website_enabled" yaml:"website_enabled"`
	SyncFrequencyHours int    `json:"sync_frequency_hours" yaml:"sync_frequency_hours"`
	Active             bool   `json:"active" yaml:"active"`

	// Optional dedup threshold overrides. Zero means use the engine defaults.
	AutoMergeThreshold float64 `json:"auto_merge_threshold,omitempty" yaml:"auto_merge_threshold"`
	ReviewThreshold    float64 `json:"review_threshold,omitempty" yaml:"review_threshold"`
}

// IsPriority reports whether the committee is scraped on the website schedule.
func (c SyncConfig) IsPriority() bool {
	return c.PriorityLevel == 1
}

// SyncMetric is one row per (run, committee, source).
type SyncMetric struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	CommitteeCode   string    `json:"committee_code"`
	Source          Source    `json:"source"`
	Discovered      int       `json:"hearings_discovered"`
	Updated         int       `json:"hearings_updated"`
	Errors          int       `json:"errors"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	SuccessRate     float64   `json:"success_rate"`
	Success         bool      `json:"success"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// Stats aggregates the unified store.
type Stats struct {
	TotalHearings     int            `json:"total_hearings"`
	APIHearings       int            `json:"api_hearings"`
	WebsiteHearings   int            `json:"website_hearings"`
	BothSources       int            `json:"both_sources"`
	AverageConfidence float64        `json:"average_confidence"`
	RecentSyncs       map[string]int `json:"recent_syncs_24h"`
	MergedHearings    int            `json:"merged_hearings"`
}
