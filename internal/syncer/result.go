package syncer

import (
	"time"

	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
	"github.com/sells-group/hearing-sync/internal/resilience"
)

// SyncResult reports one committee's sync from one source.
type SyncResult struct {
	CommitteeCode string        `json:"committee_code"`
	Source        model.Source  `json:"source"`
	Discovered    int           `json:"hearings_discovered"`
	Updated       int           `json:"hearings_updated"`
	Errors        int           `json:"errors"`
	Duration      time.Duration `json:"duration"`
	Success       bool          `json:"success"`
	// Skipped is set when the source's circuit breaker was open.
	Skipped      bool   `json:"skipped,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SuccessRate is the share of fetched records written without error.
func (r *SyncResult) SuccessRate() float64 {
	total := r.Discovered + r.Updated + r.Errors
	if total == 0 {
		if r.Success {
			return 1
		}
		return 0
	}
	return float64(r.Discovered+r.Updated) / float64(total)
}

func (r *SyncResult) metric(runID string, now time.Time) model.SyncMetric {
	return model.SyncMetric{
		RunID:           runID,
		CommitteeCode:   r.CommitteeCode,
		Source:          r.Source,
		Discovered:      r.Discovered,
		Updated:         r.Updated,
		Errors:          r.Errors,
		ExecutionTimeMS: r.Duration.Milliseconds(),
		SuccessRate:     r.SuccessRate(),
		Success:         r.Success,
		RecordedAt:      now,
	}
}

// CommitteeResult groups the per-source results of one committee. A nil
// source result means that source was not attempted.
type CommitteeResult struct {
	CommitteeCode string      `json:"committee_code"`
	API           *SyncResult `json:"api,omitempty"`
	Website       *SyncResult `json:"website,omitempty"`
}

// Success reports whether every attempted source succeeded.
func (c *CommitteeResult) Success() bool {
	for _, r := range []*SyncResult{c.API, c.Website} {
		if r != nil && !r.Skipped && !r.Success {
			return false
		}
	}
	return true
}

// Totals sums discovered, updated and errored records across sources.
func (c *CommitteeResult) Totals() (discovered, updated, errs int) {
	for _, r := range []*SyncResult{c.API, c.Website} {
		if r == nil {
			continue
		}
		discovered += r.Discovered
		updated += r.Updated
		errs += r.Errors
	}
	return discovered, updated, errs
}

// DedupResult reports a deduplication pass.
type DedupResult struct {
	WindowStart string        `json:"window_start"`
	Scanned     int           `json:"scanned"`
	Report      dedup.Report  `json:"report"`
	Merged      int           `json:"merged"`
	MergeErrors int           `json:"merge_errors"`
	Review      []dedup.Match `json:"review"`
	Applied     bool          `json:"applied"`
	Error       string        `json:"error,omitempty"`
}

// RunResult is the outcome of a full sync run.
type RunResult struct {
	RunID      string                      `json:"run_id"`
	StartedAt  time.Time                   `json:"started_at"`
	Duration   time.Duration               `json:"duration"`
	Committees map[string]*CommitteeResult `json:"committees"`
	Dedup      *DedupResult                `json:"dedup,omitempty"`
	// MetricsError is set when the metric rows could not be written.
	MetricsError string `json:"metrics_error,omitempty"`
}

// Schedule modes chosen by RunScheduledSync.
const (
	ModeDailyAPI     = "daily_api"
	ModePriorityWeb  = "priority_website"
	ModeOverdue      = "overdue"
	ModeNothingToRun = "none"
)

// ScheduledResult is the outcome of a scheduled sync decision and run.
type ScheduledResult struct {
	Mode       string     `json:"mode"`
	Hour       int        `json:"hour"`
	Committees []string   `json:"committees"`
	Run        *RunResult `json:"run,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// Status is the orchestrator's health view.
type Status struct {
	GeneratedAt   time.Time                     `json:"generated_at"`
	Stats         *model.Stats                  `json:"database"`
	Breakers      []resilience.BreakerSnapshot  `json:"circuit_breakers"`
	RecentMetrics []model.SyncMetric            `json:"recent_metrics"`
	Sources       map[model.Source]SourceStatus `json:"sources"`
}

// SourceStatus summarizes one source over the recent metrics.
type SourceStatus struct {
	Configured     bool    `json:"configured"`
	Usable         bool    `json:"usable"`
	Runs           int     `json:"runs"`
	Failures       int     `json:"failures"`
	AvgSuccessRate float64 `json:"avg_success_rate"`
	AvgExecutionMS int64   `json:"avg_execution_ms"`
}
