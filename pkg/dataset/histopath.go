package dataset

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/midas-in/midas-oral-cancer-labelling-app/internal/utils"
)

// findHistopathBase returns the first descendant of visitDir (lexical walk
// order) whose name contains "histopath", or "" when the visit has none.
func findHistopathBase(visitDir string) string {
	base := ""
	err := filepath.WalkDir(visitDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			utils.Log.Warnf("skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() && strings.Contains(strings.ToLower(d.Name()), "histopath") {
			base = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		utils.Log.Warnf("walk of %s aborted: %v", visitDir, err)
	}
	return base
}

// FindHistopathImages walks root as Case → Visit → *histopath* →
// BodySite → Magnification → images. Magnification folders must encode one
// of the supported zoom levels (10x, 20x, 40x); anything else is skipped
// with a warning. Results are deduplicated on resolved path and sorted by
// (case, visit, body site, magnification, file).
func FindHistopathImages(root string) ([]Record, error) {
	if _, err := filepath.Abs(root); err != nil {
		return nil, err
	}

	var records []Record
	seen := map[string]bool{}

	for _, caseDir := range sortedSubdirs(root) {
		caseID := filepath.Base(caseDir)
		for _, visitDir := range sortedSubdirs(caseDir) {
			visitID := filepath.Base(visitDir)

			base := findHistopathBase(visitDir)
			if base == "" {
				continue
			}

			for _, siteDir := range sortedSubdirs(base) {
				bodySite := filepath.Base(siteDir)
				for _, magDir := range sortedSubdirs(siteDir) {
					magnification := filepath.Base(magDir)
					magValue := ParseMagnification(magnification)
					if !magValues[magValue] {
						utils.Log.Warnf("skipping folder %s: unsupported magnification", magDir)
						continue
					}
					for _, file := range sortedFiles(magDir) {
						name := filepath.Base(file)
						if !IsImage(name) {
							continue
						}
						key := resolve(file)
						if seen[key] {
							continue
						}
						seen[key] = true
						records = append(records, Record{
							Case:          caseID,
							Visit:         visitID,
							BodySite:      bodySite,
							Magnification: magnification,
							MagValue:      magValue,
							File:          name,
							Path:          key,
						})
					}
				}
			}
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
		if a.BodySite != b.BodySite {
			return a.BodySite < b.BodySite
		}
		if a.MagValue != b.MagValue {
			return a.MagValue < b.MagValue
		}
		return a.File < b.File
	})
	return records, nil
}

// Find dispatches to the protocol-specific scanner.
func Find(protocol, root string) ([]Record, error) {
	if strings.EqualFold(protocol, "histopath") {
		return FindHistopathImages(root)
	}
	return FindClinicalImages(root)
}
