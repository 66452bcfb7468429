// Package report serializes a label map to CSV and derives the session
// summary text. Both outputs are pure functions of the entries and the
// session metadata, so re-saving an unchanged session is byte-identical.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
)

// TimestampLayout matches the row timestamps written by the original
// desktop tools.
const TimestampLayout = "2006-01-02 15:04:05"

var clinicalHeader = []string{"case", "visit", "file", "label", "comment"}

var histopathHeader = []string{
	"Case_ID", "Visit_ID", "Body_Site", "Magnification", "Image_File",
	"Diagnosis", "Subtype", "Comment", "Time_Spent_sec", "Annotator", "Timestamp",
}

// SortEntries orders entries the way the CSVs are written: clinical by
// (case, visit, file), histopath by (case, visit, body site, magnification,
// file).
func SortEntries(p labels.Protocol, entries []labels.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Case != b.Case {
			return a.Case < b.Case
		}
		if a.Visit != b.Visit {
			return a.Visit < b.Visit
		}
		if p == labels.Histopath {
			if a.BodySite != b.BodySite {
				return a.BodySite < b.BodySite
			}
			if a.MagValue != b.MagValue {
				return a.MagValue < b.MagValue
			}
		}
		return a.File < b.File
	})
}

// flattenComment keeps comments on one CSV line, as the desktop tools did.
func flattenComment(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

// WriteCSV emits the schema for the given protocol. Entries are sorted on
// a copy; the caller's slice is left alone.
func WriteCSV(w io.Writer, p labels.Protocol, entries []labels.Entry) error {
	rows := make([]labels.Entry, len(entries))
	copy(rows, entries)
	SortEntries(p, rows)

	cw := csv.NewWriter(w)
	if p == labels.Clinical {
		if err := cw.Write(clinicalHeader); err != nil {
			return err
		}
		for _, e := range rows {
			if err := cw.Write([]string{e.Case, e.Visit, e.File, e.Category, flattenComment(e.Comment)}); err != nil {
				return err
			}
		}
	} else {
		if err := cw.Write(histopathHeader); err != nil {
			return err
		}
		for _, e := range rows {
			if err := cw.Write([]string{
				e.Case, e.Visit, e.BodySite, e.Magnification, e.File,
				e.Category, e.Subtype, flattenComment(e.Comment),
				fmt.Sprintf("%.2f", e.TimeSpent), e.Annotator,
				e.LabeledAt.Format(TimestampLayout),
			}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the CSV to path, creating parent directories as needed.
func SaveCSV(path string, p labels.Protocol, entries []labels.Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteCSV(f, p, entries); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ReadCSV parses a labels CSV back into entries. The header decides
// nothing; the protocol does. Malformed numeric fields fail loudly rather
// than silently zeroing data.
func ReadCSV(r io.Reader, p labels.Protocol) ([]labels.Entry, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var out []labels.Entry
	for i, row := range records[1:] {
		line := i + 2
		if p == labels.Clinical {
			if len(row) != len(clinicalHeader) {
				return nil, fmt.Errorf("line %d: want %d fields, got %d", line, len(clinicalHeader), len(row))
			}
			out = append(out, labels.Entry{
				Case: row[0], Visit: row[1], File: row[2],
				Category: row[3], Comment: row[4],
			})
			continue
		}
		if len(row) != len(histopathHeader) {
			return nil, fmt.Errorf("line %d: want %d fields, got %d", line, len(histopathHeader), len(row))
		}
		spent, err := strconv.ParseFloat(row[8], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad Time_Spent_sec %q: %w", line, row[8], err)
		}
		var labelled time.Time
		if row[10] != "" {
			labelled, err = time.Parse(TimestampLayout, row[10])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad Timestamp %q: %w", line, row[10], err)
			}
		}
		out = append(out, labels.Entry{
			Case: row[0], Visit: row[1], BodySite: row[2],
			Magnification: row[3],
			MagValue:      magValueOf(row[3]),
			File:          row[4],
			Category:      row[5], Subtype: row[6], Comment: row[7],
			TimeSpent: spent, Annotator: row[9], LabeledAt: labelled,
		})
	}
	return out, nil
}

func magValueOf(magnification string) int {
	n := strings.TrimRightFunc(strings.ToLower(magnification), func(r rune) bool { return r == 'x' })
	if i := strings.LastIndexFunc(n, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		n = n[i+1:]
	}
	v, err := strconv.Atoi(n)
	if err != nil {
		return 0
	}
	return v
}

// SummaryPath derives the companion summary filename for a CSV path, e.g.
// labels.csv → labels_summary.txt.
func SummaryPath(csvPath string) string {
	ext := filepath.Ext(csvPath)
	stem := strings.TrimSuffix(csvPath, ext)
	return stem + "_summary.txt"
}
