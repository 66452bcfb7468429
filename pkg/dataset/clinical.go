package dataset

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/midas-in/midas-oral-cancer-labelling-app/internal/utils"
)

// clinicalKeywords mark a modality folder as holding extraoral/clinical
// photographs. Matched case-insensitively as substrings.
var clinicalKeywords = []string{"xc", "clinical"}

func isClinicalFolder(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range clinicalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FindClinicalImages walks root as Case → Visit → any descendant folder
// whose name contains "xc" or "clinical", collecting every image beneath
// such folders. The result is deduplicated on resolved path and sorted by
// (case, visit, path) so repeated scans of an unchanged tree are stable.
func FindClinicalImages(root string) ([]Record, error) {
	if _, err := filepath.Abs(root); err != nil {
		return nil, err
	}

	var records []Record
	seen := map[string]bool{}

	for _, caseDir := range sortedSubdirs(root) {
		caseID := filepath.Base(caseDir)
		for _, visitDir := range sortedSubdirs(caseDir) {
			visitID := filepath.Base(visitDir)
			collectClinical(visitDir, caseID, visitID, seen, &records)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Case != b.Case {
			return a.Case < b.Case
		}
		if a.Visit != b.Visit {
			return a.Visit < b.Visit
		}
		return a.Path < b.Path
	})
	return records, nil
}

// collectClinical scans every directory under visitDir for clinical
// keyword matches and gathers images below the matches.
func collectClinical(visitDir, caseID, visitID string, seen map[string]bool, out *[]Record) {
	err := filepath.WalkDir(visitDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			utils.Log.Warnf("skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() || !isClinicalFolder(d.Name()) {
			return nil
		}
		gatherImages(path, caseID, visitID, seen, out)
		// Images under this folder are collected; no need to re-match
		// nested folder names.
		return fs.SkipDir
	})
	if err != nil {
		utils.Log.Warnf("walk of %s aborted: %v", visitDir, err)
	}
}

// gatherImages recursively collects allowed image files beneath dir.
func gatherImages(dir, caseID, visitID string, seen map[string]bool, out *[]Record) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			utils.Log.Warnf("skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() || !IsImage(d.Name()) {
			return nil
		}
		key := resolve(path)
		if seen[key] {
			return nil
		}
		seen[key] = true
		*out = append(*out, Record{
			Case:  caseID,
			Visit: visitID,
			File:  d.Name(),
			Path:  key,
		})
		return nil
	})
	if err != nil {
		utils.Log.Warnf("walk of %s aborted: %v", dir, err)
	}
}
