package labels

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Protocol selects which labelling schema is in effect.
type Protocol string

const (
	Clinical  Protocol = "clinical"
	Histopath Protocol = "histopath"
)

func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "clinical", "xc":
		return Clinical, nil
	case "histopath", "histopathology":
		return Histopath, nil
	}
	return "", fmt.Errorf("unknown protocol %q (want clinical or histopath)", s)
}

// Clinical labels.
const (
	Suspicious    = "Suspicious"
	NonSuspicious = "Non-Suspicious"
	NA            = "NA"
)

// Histopath primary diagnoses.
const (
	Normal        = "Normal"
	Dysplasia     = "Dysplasia"
	Cancer        = "Cancer"
	Indeterminate = "Indeterminate"
)

// Normal tissue subtypes.
const (
	Stroma     = "Stroma"
	Epithelium = "Epithelium"
	Both       = "Both"
)

// Dysplasia binary risk.
const (
	LowRisk  = "Low_Risk"
	HighRisk = "High_Risk"
)

// Dysplasia three-tier grades.
const (
	Mild     = "Mild"
	Moderate = "Moderate"
	Severe   = "Severe"
)

// Cancer differentiation tiers.
const (
	WellDifferentiated       = "Well_Differentiated"
	ModeratelyDifferentiated = "Moderately_Differentiated"
	PoorlyDifferentiated     = "Poorly_Differentiated"
)

// Ungradable is a grading-state qualifier on Dysplasia/Cancer, not a
// primary diagnosis. It always demands a comment.
const Ungradable = "Ungradable"

var (
	ErrUnknownCategory    = errors.New("unknown label category")
	ErrCommentRequired    = errors.New("comment is required for this category")
	ErrIncompleteGrading  = errors.New("grading selection is incomplete")
	ErrConflictingGrading = errors.New("ungradable conflicts with grading selections")
	ErrUnexpectedSubtype  = errors.New("subtype not allowed for this category")
)

var clinicalLabels = map[string]bool{
	Suspicious:    true,
	NonSuspicious: true,
	NA:            true,
}

var diagnoses = map[string]bool{
	Normal:        true,
	Dysplasia:     true,
	Cancer:        true,
	Indeterminate: true,
}

var tissueTypes = map[string]bool{
	Stroma:     true,
	Epithelium: true,
	Both:       true,
}

var binaryRisks = map[string]bool{
	LowRisk:  true,
	HighRisk: true,
}

var dysplasiaTiers = map[string]bool{
	Mild:     true,
	Moderate: true,
	Severe:   true,
}

var differentiationTiers = map[string]bool{
	WellDifferentiated:       true,
	ModeratelyDifferentiated: true,
	PoorlyDifferentiated:     true,
}

// Grading holds the secondary selections made after a primary diagnosis.
// Ungradable is mutually exclusive with every other field.
type Grading struct {
	Tissue     string // Normal only
	Risk       string // Dysplasia binary risk
	Tier       string // Dysplasia grade or Cancer differentiation
	Ungradable bool
}

// ValidateClinical is the commit guard for the clinical schema.
func ValidateClinical(label, comment string) error {
	if !clinicalLabels[label] {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, label)
	}
	if label == NA && strings.TrimSpace(comment) == "" {
		return fmt.Errorf("%w: label NA", ErrCommentRequired)
	}
	return nil
}

// ValidateHistopath is the commit guard for the histopath schema.
func ValidateHistopath(diagnosis string, g Grading, comment string) error {
	if !diagnoses[diagnosis] {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, diagnosis)
	}

	hasComment := strings.TrimSpace(comment) != ""

	if g.Ungradable {
		if diagnosis != Dysplasia && diagnosis != Cancer {
			return fmt.Errorf("%w: %s cannot be ungradable", ErrUnexpectedSubtype, diagnosis)
		}
		if g.Tissue != "" || g.Risk != "" || g.Tier != "" {
			return ErrConflictingGrading
		}
		if !hasComment {
			return fmt.Errorf("%w: ungradable", ErrCommentRequired)
		}
		return nil
	}

	switch diagnosis {
	case Normal:
		if g.Risk != "" || g.Tier != "" {
			return fmt.Errorf("%w: normal takes a tissue type only", ErrUnexpectedSubtype)
		}
		if !tissueTypes[g.Tissue] {
			return fmt.Errorf("%w: tissue type", ErrIncompleteGrading)
		}
	case Dysplasia:
		if g.Tissue != "" {
			return fmt.Errorf("%w: dysplasia takes risk and grade", ErrUnexpectedSubtype)
		}
		if !binaryRisks[g.Risk] || !dysplasiaTiers[g.Tier] {
			return fmt.Errorf("%w: need binary risk and three-tier grade", ErrIncompleteGrading)
		}
	case Cancer:
		if g.Tissue != "" || g.Risk != "" {
			return fmt.Errorf("%w: cancer takes a differentiation tier", ErrUnexpectedSubtype)
		}
		if !differentiationTiers[g.Tier] {
			return fmt.Errorf("%w: differentiation tier", ErrIncompleteGrading)
		}
	case Indeterminate:
		if g.Tissue != "" || g.Risk != "" || g.Tier != "" {
			return fmt.Errorf("%w: indeterminate takes no subtype", ErrUnexpectedSubtype)
		}
		if !hasComment {
			return fmt.Errorf("%w: indeterminate", ErrCommentRequired)
		}
	}
	return nil
}

// EncodeSubtype serializes a validated grading the way the CSVs expect:
// tissue type for Normal, "Binary:<risk>|ThreeTier:<grade>" for Dysplasia,
// "ThreeTier:<tier>" for Cancer, "Ungradable" for either, "" for
// Indeterminate.
func EncodeSubtype(diagnosis string, g Grading) string {
	if g.Ungradable {
		return Ungradable
	}
	switch diagnosis {
	case Normal:
		return g.Tissue
	case Dysplasia:
		return fmt.Sprintf("Binary:%s|ThreeTier:%s", g.Risk, g.Tier)
	case Cancer:
		return "ThreeTier:" + g.Tier
	}
	return ""
}

// ParseSubtype is the inverse of EncodeSubtype. It tolerates the empty
// string so partially filled rows from older CSVs still load.
func ParseSubtype(diagnosis, subtype string) (Grading, error) {
	var g Grading
	if subtype == "" {
		return g, nil
	}
	if subtype == Ungradable {
		g.Ungradable = true
		return g, nil
	}
	switch diagnosis {
	case Normal:
		if !tissueTypes[subtype] {
			return g, fmt.Errorf("%w: bad tissue type %q", ErrUnexpectedSubtype, subtype)
		}
		g.Tissue = subtype
	case Dysplasia, Cancer:
		for _, part := range strings.Split(subtype, "|") {
			k, v, ok := strings.Cut(part, ":")
			if !ok {
				return g, fmt.Errorf("%w: malformed subtype %q", ErrUnexpectedSubtype, subtype)
			}
			switch k {
			case "Binary":
				g.Risk = v
			case "ThreeTier":
				g.Tier = v
			default:
				return g, fmt.Errorf("%w: unknown grading field %q", ErrUnexpectedSubtype, k)
			}
		}
	default:
		return g, fmt.Errorf("%w: %s takes no subtype", ErrUnexpectedSubtype, diagnosis)
	}
	return g, nil
}

// Entry is one committed label for one image. Category holds the clinical
// label or the histopath diagnosis depending on the protocol; Subtype is
// the encoded grading and is empty for clinical entries.
type Entry struct {
	Case          string
	Visit         string
	BodySite      string
	Magnification string
	MagValue      int
	File          string
	Path          string
	Category      string
	Subtype       string
	Comment       string
	TimeSpent     float64
	Annotator     string
	LabeledAt     time.Time
}

// Validate re-runs the commit guard for an already-encoded entry, e.g.
// rows loaded from CSV or received over the review API.
func (e Entry) Validate(p Protocol) error {
	if p == Clinical {
		if e.Subtype != "" {
			return fmt.Errorf("%w: clinical entries have no subtype", ErrUnexpectedSubtype)
		}
		return ValidateClinical(e.Category, e.Comment)
	}
	g, err := ParseSubtype(e.Category, e.Subtype)
	if err != nil {
		return err
	}
	return ValidateHistopath(e.Category, g, e.Comment)
}

// Flagged reports whether the entry belongs in the summary's uncertainty
// log: NA, Indeterminate, or Ungradable.
func (e Entry) Flagged() bool {
	return e.Category == NA || e.Category == Indeterminate || e.Subtype == Ungradable
}
