// Package dataset walks MIDAS-style folder trees (Case → Visit → modality
// folders → images) and yields ordered, deduplicated image records.
package dataset

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/midas-in/midas-oral-cancer-labelling-app/internal/utils"
)

// Record identifies one discovered image. Path is absolute and unique
// across a scan; records are immutable once scanned.
type Record struct {
	Case          string `json:"case"`
	Visit         string `json:"visit"`
	BodySite      string `json:"body_site,omitempty"`
	Magnification string `json:"magnification,omitempty"`
	MagValue      int    `json:"mag_value,omitempty"`
	File          string `json:"file"`
	Path          string `json:"path"`
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
}

// IsImage reports whether the filename carries an allowed image extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

var magRe = regexp.MustCompile(`(?i)(\d+)x`)

// allowed microscope magnifications
var magValues = map[int]bool{10: true, 20: true, 40: true}

// ParseMagnification extracts the numeric zoom level from a magnification
// folder name ("20x", "Mag_40X"). Returns 0 when the name carries none.
func ParseMagnification(name string) int {
	m := magRe.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}

// sortedSubdirs lists the immediate subdirectories of path in lexicographic
// order. Unreadable directories are skipped with a warning, never fatal.
func sortedSubdirs(path string) []string {
	entries, err := os.ReadDir(path)
	if err != nil {
		utils.Log.Warnf("skipping unreadable directory %s: %v", path, err)
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(path, e.Name()))
		}
	}
	return dirs
}

// sortedFiles lists the immediate regular files of path in lexicographic
// order.
func sortedFiles(path string) []string {
	entries, err := os.ReadDir(path)
	if err != nil {
		utils.Log.Warnf("skipping unreadable directory %s: %v", path, err)
		return nil
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	return files
}

// resolve returns the canonical absolute path used as record identity.
func resolve(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return path
}
