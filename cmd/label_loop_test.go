package cmd

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/dataset"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/report"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/session"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/storage"
)

// newTestLoop wires a labelLoop to a scripted input, a real temp database
// and a temp CSV path, the way runLabel does.
func newTestLoop(t *testing.T, protocol labels.Protocol, records []dataset.Record, input string) (*labelLoop, *bytes.Buffer, string, *storage.DB) {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.Open(filepath.Join(dir, "labelscope.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sess := session.New(protocol, dir, "tester", records)
	require.NoError(t, db.CreateSession(context.Background(), storage.SessionMeta{
		ID:        sess.ID,
		Protocol:  string(protocol),
		Root:      dir,
		Annotator: "tester",
		StartedAt: sess.StartedAt,
	}))

	output := filepath.Join(dir, "labels.csv")
	saver := &sessionSaver{sess: sess, db: db, output: output}

	var out bytes.Buffer
	loop := &labelLoop{
		sess:  sess,
		saver: saver,
		in:    bufio.NewScanner(strings.NewReader(input)),
		out:   &out,
	}
	return loop, &out, output, db
}

func clinicalRecords() []dataset.Record {
	return []dataset.Record{
		{Case: "Case_001", Visit: "Visit_1", File: "img1.jpg", Path: "/data/Case_001/Visit_1/XC/img1.jpg"},
		{Case: "Case_002", Visit: "Visit_1", File: "img2.jpg", Path: "/data/Case_002/Visit_1/XC/img2.jpg"},
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
}

func TestClinicalLoopWritesExpectedCSV(t *testing.T) {
	loop, out, output, _ := newTestLoop(t, labels.Clinical, clinicalRecords(), "s\nn\n")

	require.NoError(t, loop.run())

	lines := readLines(t, output)
	require.Equal(t, []string{
		"case,visit,file,label,comment",
		"Case_001,Visit_1,img1.jpg,Suspicious,",
		"Case_002,Visit_1,img2.jpg,Non-Suspicious,",
	}, lines)

	// Full run, so the summary reports a completed session.
	summary, err := os.ReadFile(report.SummaryPath(output))
	require.NoError(t, err)
	require.Contains(t, string(summary), "Status: COMPLETED")

	require.Contains(t, out.String(), "NEW CASE: Case_002")
}

func TestClinicalLoopMirrorsToDatabase(t *testing.T) {
	loop, _, _, db := newTestLoop(t, labels.Clinical, clinicalRecords(), "s\nn\n")

	require.NoError(t, loop.run())

	entries, err := db.ListEntries(context.Background(), loop.sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, labels.Suspicious, entries[0].Category)
	require.Equal(t, labels.NonSuspicious, entries[1].Category)
}

func TestNAWithoutCommentReprompts(t *testing.T) {
	records := clinicalRecords()[:1]
	// First attempt leaves the required comment empty and is rejected;
	// the second supplies one.
	loop, out, output, _ := newTestLoop(t, labels.Clinical, records, "x\n\nx\ntoo dark\n")

	require.NoError(t, loop.run())

	require.Contains(t, out.String(), labels.ErrCommentRequired.Error())
	lines := readLines(t, output)
	require.Equal(t, "Case_001,Visit_1,img1.jpg,NA,too dark", lines[1])
}

func TestQuitEarlySavesPartial(t *testing.T) {
	loop, _, output, _ := newTestLoop(t, labels.Clinical, clinicalRecords(), "s\nq\n")

	require.NoError(t, loop.run())

	lines := readLines(t, output)
	require.Len(t, lines, 2)
	require.Equal(t, "Case_001,Visit_1,img1.jpg,Suspicious,", lines[1])

	summary, err := os.ReadFile(report.SummaryPath(output))
	require.NoError(t, err)
	require.Contains(t, string(summary), "IN PROGRESS (Partial Save)")
}

func TestQuitWithoutLabelsSavesNothing(t *testing.T) {
	loop, out, output, _ := newTestLoop(t, labels.Clinical, clinicalRecords(), "q\n")

	require.NoError(t, loop.run())

	require.Contains(t, out.String(), "nothing to save")
	_, err := os.Stat(output)
	require.True(t, os.IsNotExist(err))
}

func TestEOFActsAsQuit(t *testing.T) {
	loop, _, output, _ := newTestLoop(t, labels.Clinical, clinicalRecords(), "s\n")

	require.NoError(t, loop.run())

	lines := readLines(t, output)
	require.Len(t, lines, 2)
}

func TestBackAndRelabel(t *testing.T) {
	// Label the first image, step back and overwrite it, then finish.
	loop, _, output, _ := newTestLoop(t, labels.Clinical, clinicalRecords(), "n\nb\ns\nn\n")

	require.NoError(t, loop.run())

	lines := readLines(t, output)
	require.Equal(t, []string{
		"case,visit,file,label,comment",
		"Case_001,Visit_1,img1.jpg,Suspicious,",
		"Case_002,Visit_1,img2.jpg,Non-Suspicious,",
	}, lines)
}

func histopathRecords() []dataset.Record {
	return []dataset.Record{
		{
			Case: "Case_010", Visit: "Visit_1", BodySite: "Tongue",
			Magnification: "20x", MagValue: 20, File: "h1.jpg",
			Path: "/data/Case_010/Visit_1/Histopath/Tongue/20x/h1.jpg",
		},
	}
}

func TestHistopathLoopDysplasia(t *testing.T) {
	// 2 = Dysplasia, risk High, grade Severe, no comment.
	loop, _, output, _ := newTestLoop(t, labels.Histopath, histopathRecords(), "2\n2\n3\n\n")

	require.NoError(t, loop.run())

	lines := readLines(t, output)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "Diagnosis")
	require.Contains(t, lines[1], "Dysplasia")
	require.Contains(t, lines[1], "Binary:High_Risk|ThreeTier:Severe")
}

func TestHistopathUngradableNeedsComment(t *testing.T) {
	// Cancer + Ungradable with an empty comment is rejected, then the
	// annotator supplies one.
	loop, out, output, _ := newTestLoop(t, labels.Histopath, histopathRecords(), "3\nu\n\n3\nu\ntissue torn\n")

	require.NoError(t, loop.run())

	require.Contains(t, out.String(), labels.ErrCommentRequired.Error())
	lines := readLines(t, output)
	require.Contains(t, lines[1], "Ungradable")
	require.Contains(t, lines[1], "tissue torn")
}

func TestHistopathGradingCancel(t *testing.T) {
	// An empty answer at the tissue prompt cancels back to the primary
	// prompt without committing.
	loop, _, output, _ := newTestLoop(t, labels.Histopath, histopathRecords(), "1\n\n4\nslide unreadable\n")

	require.NoError(t, loop.run())

	lines := readLines(t, output)
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "Indeterminate")
	require.Contains(t, lines[1], "slide unreadable")
}

func TestExplicitSaveMidSession(t *testing.T) {
	loop, out, output, _ := newTestLoop(t, labels.Clinical, clinicalRecords(), "s\nw\nn\n")

	require.NoError(t, loop.run())

	require.Contains(t, out.String(), "saved 1 labels to")
	lines := readLines(t, output)
	require.Len(t, lines, 3)
}
