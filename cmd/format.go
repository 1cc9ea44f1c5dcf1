package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
	"github.com/sells-group/hearing-sync/internal/syncer"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sourceCell renders one source result as a short table cell.
func sourceCell(r *syncer.SyncResult) string {
	switch {
	case r == nil:
		return "-"
	case r.Skipped:
		return "skipped"
	case !r.Success:
		return "failed"
	default:
		return fmt.Sprintf("+%d ~%d !%d", r.Discovered, r.Updated, r.Errors)
	}
}

// formatRunResult writes a per-committee table followed by the dedup outcome.
func formatRunResult(out io.Writer, res *syncer.RunResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", truncateID(res.RunID))
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n\n", res.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintln(w, "COMMITTEE\tAPI\tWEBSITE\tSTATUS")
	_, _ = fmt.Fprintln(w, "---------\t---\t-------\t------")

	codes := make([]string, 0, len(res.Committees))
	for code := range res.Committees {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		cr := res.Committees[code]
		status := "ok"
		if !cr.Success() {
			status = "error"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", code, sourceCell(cr.API), sourceCell(cr.Website), status)
	}
	_ = w.Flush()

	if res.Dedup != nil {
		_, _ = fmt.Fprintln(out)
		formatDedupResult(out, res.Dedup)
	}
	if res.MetricsError != "" {
		_, _ = fmt.Fprintf(out, "metrics not recorded: %s\n", res.MetricsError)
	}
}

// formatDedupResult writes dedup totals and the matches awaiting review.
func formatDedupResult(out io.Writer, d *syncer.DedupResult) {
	if d.Error != "" {
		_, _ = fmt.Fprintf(out, "Dedup failed: %s\n", d.Error)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Dedup window from:\t%s\n", d.WindowStart)
	_, _ = fmt.Fprintf(w, "Hearings scanned:\t%d\n", d.Scanned)
	_, _ = fmt.Fprintf(w, "Matches:\t%d\n", d.Report.TotalMatches)
	if d.Report.TotalMatches > 0 {
		_, _ = fmt.Fprintf(w, "Average similarity:\t%.3f\n", d.Report.AverageSimilarity)
	}
	if d.Applied {
		_, _ = fmt.Fprintf(w, "Merged:\t%d\n", d.Merged)
		if d.MergeErrors > 0 {
			_, _ = fmt.Fprintf(w, "Merge errors:\t%d\n", d.MergeErrors)
		}
	}
	_, _ = fmt.Fprintf(w, "Awaiting review:\t%d\n", len(d.Review))
	_ = w.Flush()

	if len(d.Review) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PRIMARY\tSECONDARY\tCOMMITTEE\tSCORE\tFACTORS")
	for _, m := range d.Review {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%.3f\t%s\n",
			m.PrimaryID, m.SecondaryID, m.CommitteeCode, m.SimilarityScore, factorSummary(m.MatchFactors))
	}
	_ = w.Flush()
}

// formatStatus writes store totals, breaker states and per-source summaries.
func formatStatus(out io.Writer, st *syncer.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if s := st.Stats; s != nil {
		_, _ = fmt.Fprintf(w, "Hearings:\t%d\n", s.TotalHearings)
		_, _ = fmt.Fprintf(w, "  From API:\t%d\n", s.APIHearings)
		_, _ = fmt.Fprintf(w, "  From website:\t%d\n", s.WebsiteHearings)
		_, _ = fmt.Fprintf(w, "  Both sources:\t%d\n", s.BothSources)
		_, _ = fmt.Fprintf(w, "Merged away:\t%d\n", s.MergedHearings)
		_, _ = fmt.Fprintf(w, "Avg confidence:\t%.2f\n", s.AverageConfidence)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tCONFIGURED\tBREAKER\tFAILURES\tRUNS\tFAILED\tAVG_SUCCESS\tAVG_MS")
	breakers := make(map[string]string, len(st.Breakers))
	failures := make(map[string]int, len(st.Breakers))
	for _, b := range st.Breakers {
		breakers[b.Source] = b.State
		failures[b.Source] = b.Failures
	}
	for _, src := range model.Sources() {
		s := st.Sources[src]
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%d\t%d\t%.0f%%\t%d\n",
			src, s.Configured, breakers[string(src)], failures[string(src)],
			s.Runs, s.Failures, s.AvgSuccessRate*100, s.AvgExecutionMS)
	}
	_ = w.Flush()
}

// formatSyncConfigs writes committee sync settings as a table.
func formatSyncConfigs(out io.Writer, configs []model.SyncConfig) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMMITTEE\tPRIORITY\tAPI\tWEBSITE\tFREQ_H\tACTIVE")
	_, _ = fmt.Fprintln(w, "---------\t--------\t---\t-------\t------\t------")
	for _, c := range configs {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%t\t%t\t%d\t%t\n",
			c.CommitteeCode, c.PriorityLevel, c.APIEnabled, c.WebsiteEnabled, c.SyncFrequencyHours, c.Active)
	}
	_ = w.Flush()
}

// factorSummary renders the title, date and witness scores of a match.
func factorSummary(f dedup.Factors) string {
	return fmt.Sprintf("title=%.2f date=%.2f witness=%.2f", f.Title, f.Date, f.Witness)
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
