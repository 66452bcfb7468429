package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
)

func clinicalEntries() []labels.Entry {
	return []labels.Entry{
		{Case: "Case_002", Visit: "Visit_1", File: "b.jpg", Category: labels.NonSuspicious},
		{Case: "Case_001", Visit: "Visit_1", File: "img1.jpg", Category: labels.Suspicious},
		{Case: "Case_001", Visit: "Visit_2", File: "a.jpg", Category: labels.NA, Comment: "too dark,\nretake"},
	}
}

func histopathEntries() []labels.Entry {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	return []labels.Entry{
		{
			Case: "Case_010", Visit: "Visit_1", BodySite: "Tongue",
			Magnification: "40x", MagValue: 40, File: "t40.jpg",
			Category: labels.Cancer, Subtype: "ThreeTier:Well_Differentiated",
			TimeSpent: 12.5, Annotator: "Dr. Rao", LabeledAt: at,
		},
		{
			Case: "Case_010", Visit: "Visit_1", BodySite: "Tongue",
			Magnification: "10x", MagValue: 10, File: "t10.jpg",
			Category: labels.Dysplasia, Subtype: "Binary:High_Risk|ThreeTier:Severe",
			Comment: "näheres prüfen", TimeSpent: 30.25, Annotator: "Dr. Rao",
			LabeledAt: at.Add(time.Minute),
		},
	}
}

func TestWriteCSVClinical(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, labels.Clinical, clinicalEntries()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Equal(t, "case,visit,file,label,comment", lines[0])
	require.Equal(t, "Case_001,Visit_1,img1.jpg,Suspicious,", lines[1])
	require.Equal(t, `Case_001,Visit_2,a.jpg,NA,"too dark, retake"`, lines[2])
	require.Equal(t, "Case_002,Visit_1,b.jpg,Non-Suspicious,", lines[3])
}

func TestWriteCSVFlattensComments(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, labels.Clinical, []labels.Entry{
		{Case: "C", Visit: "V", File: "f.jpg", Category: labels.NA, Comment: "line1\r\nline2"},
	}))
	require.NotContains(t, buf.String(), "\r")
	require.Contains(t, buf.String(), "line1  line2")
}

func TestCSVRoundTripHistopath(t *testing.T) {
	entries := histopathEntries()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, labels.Histopath, entries))

	got, err := ReadCSV(&buf, labels.Histopath)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Written sorted: 10x before 40x within the same body site.
	require.Equal(t, "t10.jpg", got[0].File)
	require.Equal(t, 10, got[0].MagValue)
	require.Equal(t, "näheres prüfen", got[0].Comment)
	require.Equal(t, 30.25, got[0].TimeSpent)
	require.Equal(t, entries[1].LabeledAt, got[0].LabeledAt)

	require.Equal(t, "t40.jpg", got[1].File)
	require.Equal(t, "ThreeTier:Well_Differentiated", got[1].Subtype)
}

func TestWriteCSVIdempotent(t *testing.T) {
	entries := histopathEntries()

	var first, second bytes.Buffer
	require.NoError(t, WriteCSV(&first, labels.Histopath, entries))
	require.NoError(t, WriteCSV(&second, labels.Histopath, entries))
	require.Equal(t, first.String(), second.String())
}

func TestWriteCSVDoesNotReorderCaller(t *testing.T) {
	entries := clinicalEntries()
	firstCase := entries[0].Case

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, labels.Clinical, entries))
	require.Equal(t, firstCase, entries[0].Case)
}

func TestReadCSVRejectsMalformed(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("case,visit,file,label,comment\nonly,two\n"), labels.Clinical)
	require.Error(t, err)

	bad := "Case_ID,Visit_ID,Body_Site,Magnification,Image_File,Diagnosis,Subtype,Comment,Time_Spent_sec,Annotator,Timestamp\n" +
		"C,V,B,10x,f.jpg,Normal,Epithelium,,not-a-number,ann,2026-03-01 10:30:00\n"
	_, err = ReadCSV(strings.NewReader(bad), labels.Histopath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Time_Spent_sec")
}

func TestSaveCSVCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "nested", "labels.csv")
	require.NoError(t, SaveCSV(path, labels.Clinical, clinicalEntries()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "case,visit,file,label,comment\n"))
}

func TestSummaryPath(t *testing.T) {
	require.Equal(t, "labels_summary.txt", SummaryPath("labels.csv"))
	require.Equal(t, "/out/run1_summary.txt", SummaryPath("/out/run1.csv"))
	require.Equal(t, "noext_summary.txt", SummaryPath("noext"))
}

func TestComputeTiming(t *testing.T) {
	timing := ComputeTiming([]labels.Entry{
		{TimeSpent: 10}, {TimeSpent: 30}, {TimeSpent: 20},
		{TimeSpent: 0}, // untimed rows are excluded
	})
	require.Equal(t, 3, timing.Count)
	require.Equal(t, 10.0, timing.Min)
	require.Equal(t, 30.0, timing.Max)
	require.Equal(t, 20.0, timing.Median)
	require.Equal(t, 60.0, timing.Total)
	require.Equal(t, 20.0, timing.Mean)

	require.Equal(t, Timing{}, ComputeTiming(nil))
}

func TestDistributionPercentagesSumTo100(t *testing.T) {
	counts := Distribution(clinicalEntries())
	total := 0
	for _, n := range counts {
		total += n
	}
	require.Equal(t, len(clinicalEntries()), total)

	sum := 0.0
	for _, n := range counts {
		sum += float64(n) / float64(total) * 100
	}
	require.InDelta(t, 100.0, sum, 0.001)
}

func TestRenderSummaryClinical(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	meta := Meta{
		Protocol:    labels.Clinical,
		Annotator:   "tester",
		StartedAt:   start,
		EndedAt:     start.Add(10 * time.Minute),
		GeneratedAt: start.Add(10 * time.Minute),
		TotalImages: 3,
		OutputPath:  "labels.csv",
	}

	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, meta, clinicalEntries()))
	out := buf.String()

	require.Contains(t, out, "CLINICAL IMAGE LABELLING SESSION SUMMARY")
	require.Contains(t, out, "Status: COMPLETED")
	require.Contains(t, out, "Images Labeled: 3")
	require.Contains(t, out, "Completion Rate: 100.0%")
	require.Contains(t, out, "Unique Cases Processed: 2")
	require.Contains(t, out, "LABEL DISTRIBUTION")
	require.Contains(t, out, "PER-CASE STATISTICS")
	// The NA entry surfaces in the flagged log with its comment.
	require.Contains(t, out, "FLAGGED ENTRIES")
	require.Contains(t, out, "too dark, retake")
	require.Contains(t, out, "Report Generated: 2026-03-01 09:10:00")
}

func TestRenderSummaryPartial(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	meta := Meta{
		Protocol:    labels.Histopath,
		Annotator:   "Dr. Rao",
		StartedAt:   start,
		GeneratedAt: start.Add(5 * time.Minute),
		TotalImages: 50,
		OutputPath:  "histo.csv",
		Partial:     true,
	}

	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, meta, histopathEntries()))
	out := buf.String()

	require.Contains(t, out, "HISTOPATHOLOGY LABELLING SESSION SUMMARY")
	require.Contains(t, out, "Status: IN PROGRESS (Partial Save)")
	require.NotContains(t, out, "Session Ended:")
	require.Contains(t, out, "Images Remaining: 48")
	require.Contains(t, out, "TIMING ANALYSIS")
	require.Contains(t, out, "Estimated Time Remaining:")
}

func TestRenderSummaryOmitsZeroTimestamps(t *testing.T) {
	// Clinical CSVs carry no timestamps, so the recomputed summary has no
	// session times to show.
	meta := Meta{
		Protocol:    labels.Clinical,
		TotalImages: 3,
		OutputPath:  "labels.csv",
	}

	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, meta, clinicalEntries()))
	out := buf.String()

	require.NotContains(t, out, "0001-01-01")
	require.NotContains(t, out, "Session Started:")
	require.NotContains(t, out, "Session Ended:")
	require.NotContains(t, out, "Total Duration:")
	require.NotContains(t, out, "Report Generated:")
	require.Contains(t, out, "Images Labeled: 3")
}

func TestRenderSummaryIdempotent(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	meta := Meta{
		Protocol:    labels.Histopath,
		Annotator:   "Dr. Rao",
		StartedAt:   start,
		EndedAt:     start.Add(2 * time.Minute),
		GeneratedAt: start.Add(2 * time.Minute),
		TotalImages: 2,
		OutputPath:  "histo.csv",
	}
	entries := histopathEntries()

	var first, second bytes.Buffer
	require.NoError(t, RenderSummary(&first, meta, entries))
	require.NoError(t, RenderSummary(&second, meta, entries))
	require.Equal(t, first.String(), second.String())
}
