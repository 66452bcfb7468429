package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
)

// Meta carries the session facts the summary needs beyond the label map.
// All timestamps come from the caller so repeated saves of the same state
// render identically.
type Meta struct {
	Protocol    labels.Protocol
	Annotator   string
	StartedAt   time.Time
	EndedAt     time.Time
	GeneratedAt time.Time
	TotalImages int
	OutputPath  string
	Partial     bool
}

// Distribution counts entries per primary category.
func Distribution(entries []labels.Entry) map[string]int {
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Category]++
	}
	return counts
}

// Timing aggregates per-image time spent.
type Timing struct {
	Count  int
	Total  float64
	Mean   float64
	Median float64
	Min    float64
	Max    float64
}

// ComputeTiming derives timing statistics from the entries' TimeSpent
// fields. Entries that never recorded time (imported CSVs without the
// column) are excluded.
func ComputeTiming(entries []labels.Entry) Timing {
	var times []float64
	for _, e := range entries {
		if e.TimeSpent > 0 {
			times = append(times, e.TimeSpent)
		}
	}
	t := Timing{Count: len(times)}
	if t.Count == 0 {
		return t
	}
	sort.Float64s(times)
	t.Min = times[0]
	t.Max = times[len(times)-1]
	t.Median = times[len(times)/2]
	for _, v := range times {
		t.Total += v
	}
	t.Mean = t.Total / float64(t.Count)
	return t
}

const rule = "----------------------------------------------------------------------"
const banner = "======================================================================"

// RenderSummary writes the session summary text: session info, progress,
// timing analysis, label distribution, per-case breakdown, flagged-entry
// log, and productivity metrics, following the layout of the desktop
// tools' reports.
func RenderSummary(w io.Writer, meta Meta, entries []labels.Entry) error {
	rows := make([]labels.Entry, len(entries))
	copy(rows, entries)
	SortEntries(meta.Protocol, rows)

	title := "CLINICAL IMAGE LABELLING SESSION SUMMARY"
	if meta.Protocol == labels.Histopath {
		title = "HISTOPATHOLOGY LABELLING SESSION SUMMARY"
	}

	p := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format+"\n", args...)
	}

	p(banner)
	p("               %s", title)
	p(banner)
	p("")

	// Session information
	status := "COMPLETED"
	end := meta.EndedAt
	if meta.Partial {
		status = "IN PROGRESS (Partial Save)"
		if end.IsZero() {
			end = meta.GeneratedAt
		}
	}
	// CSVs without row timestamps (the clinical schema) leave all session
	// times zero; those lines are omitted rather than rendered as year 1.
	var duration time.Duration
	if !meta.StartedAt.IsZero() && !end.IsZero() {
		duration = end.Sub(meta.StartedAt)
	}

	p("SESSION INFORMATION")
	p(rule)
	p("Status: %s", status)
	p("Annotator: %s", meta.Annotator)
	if !meta.StartedAt.IsZero() {
		p("Session Started: %s", meta.StartedAt.Format(TimestampLayout))
	}
	if !meta.Partial && !end.IsZero() {
		p("Session Ended: %s", end.Format(TimestampLayout))
	}
	if duration > 0 {
		p("Total Duration: %dm %ds (%.1f minutes)",
			int(duration.Minutes()), int(duration.Seconds())%60, duration.Minutes())
	}
	p("Output File: %s", meta.OutputPath)
	p("")

	// Progress
	completion := 0.0
	if meta.TotalImages > 0 {
		completion = float64(len(rows)) / float64(meta.TotalImages) * 100
	}
	cases := map[string]bool{}
	for _, e := range rows {
		cases[e.Case] = true
	}

	p("PROGRESS STATISTICS")
	p(rule)
	p("Total Images Available: %d", meta.TotalImages)
	p("Images Labeled: %d", len(rows))
	p("Images Remaining: %d", meta.TotalImages-len(rows))
	p("Completion Rate: %.1f%%", completion)
	p("Unique Cases Processed: %d", len(cases))
	p("")

	// Timing
	timing := ComputeTiming(rows)
	if timing.Count > 0 {
		p("TIMING ANALYSIS")
		p(rule)
		p("Average Time per Image: %.2f seconds", timing.Mean)
		p("Fastest Image: %.2f seconds", timing.Min)
		p("Slowest Image: %.2f seconds", timing.Max)
		p("Median Time: %.2f seconds", timing.Median)
		p("Total Active Labeling Time: %dm %ds",
			int(timing.Total)/60, int(timing.Total)%60)
		if meta.Partial && meta.TotalImages > len(rows) {
			remaining := float64(meta.TotalImages-len(rows)) * timing.Mean / 60
			p("Estimated Time Remaining: %d minutes", int(math.Round(remaining)))
		}
		p("")
	}

	// Distribution
	counts := Distribution(rows)
	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	p("LABEL DISTRIBUTION")
	p(rule)
	for _, c := range categories {
		pct := float64(counts[c]) / float64(len(rows)) * 100
		p("%-20s %5d (%5.1f%%)", c+":", counts[c], pct)
	}
	p(rule)
	p("%-20s %5d", "Total:", len(rows))
	p("")

	// Per-case breakdown
	if len(rows) > 0 {
		perCase := map[string]map[string]int{}
		for _, e := range rows {
			if perCase[e.Case] == nil {
				perCase[e.Case] = map[string]int{}
			}
			perCase[e.Case]["total"]++
			perCase[e.Case][e.Category]++
		}
		caseIDs := make([]string, 0, len(perCase))
		for id := range perCase {
			caseIDs = append(caseIDs, id)
		}
		sort.Strings(caseIDs)

		p("PER-CASE STATISTICS")
		p(rule)
		header := fmt.Sprintf("%-20s %8s", "Case ID", "Total")
		for _, c := range categories {
			header += fmt.Sprintf(" %12s", c)
		}
		p("%s", header)
		p(rule)
		for _, id := range caseIDs {
			line := fmt.Sprintf("%-20s %8d", id, perCase[id]["total"])
			for _, c := range categories {
				line += fmt.Sprintf(" %12d", perCase[id][c])
			}
			p("%s", line)
		}
		p("")
	}

	// Flagged entries with their comments
	var flagged []labels.Entry
	for _, e := range rows {
		if e.Flagged() {
			flagged = append(flagged, e)
		}
	}
	if len(flagged) > 0 {
		p("FLAGGED ENTRIES (NA / INDETERMINATE / UNGRADABLE)")
		p(rule)
		for _, e := range flagged {
			category := e.Category
			if e.Subtype == labels.Ungradable {
				category += " (Ungradable)"
			}
			p("Case: %s | Visit: %s", e.Case, e.Visit)
			p("  File: %s", e.File)
			p("  Category: %s", category)
			if e.Comment != "" {
				p("  Comment: %s", flattenComment(e.Comment))
			}
			p(rule)
		}
		p("")
	}

	// Productivity
	if timing.Count > 0 && duration > 0 {
		perHour := float64(len(rows)) / duration.Hours()
		p("PRODUCTIVITY METRICS")
		p(rule)
		p("Images per Hour: %.1f", perHour)
		p("Images per Minute: %.2f", perHour/60)
		if !meta.Partial {
			p("Session Efficiency: %.1f%% (active labeling time)",
				timing.Total/duration.Seconds()*100)
		}
		p("")
	}

	p(banner)
	if !meta.GeneratedAt.IsZero() {
		p("Report Generated: %s", meta.GeneratedAt.Format(TimestampLayout))
	}
	p(banner)
	return nil
}

// SaveSummary writes the summary next to the CSV.
func SaveSummary(path string, meta Meta, entries []labels.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := RenderSummary(f, meta, entries); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
