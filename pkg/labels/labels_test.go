package labels

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateClinical(t *testing.T) {
	require.NoError(t, ValidateClinical(Suspicious, ""))
	require.NoError(t, ValidateClinical(NonSuspicious, ""))
	require.NoError(t, ValidateClinical(NA, "blurred, cannot assess"))

	err := ValidateClinical(NA, "")
	require.ErrorIs(t, err, ErrCommentRequired)

	err = ValidateClinical(NA, "   ")
	require.ErrorIs(t, err, ErrCommentRequired)

	err = ValidateClinical("Maybe", "")
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestValidateHistopathNormal(t *testing.T) {
	require.NoError(t, ValidateHistopath(Normal, Grading{Tissue: Epithelium}, ""))

	err := ValidateHistopath(Normal, Grading{}, "")
	require.ErrorIs(t, err, ErrIncompleteGrading)

	err = ValidateHistopath(Normal, Grading{Tissue: Stroma, Tier: Mild}, "")
	require.ErrorIs(t, err, ErrUnexpectedSubtype)
}

func TestValidateHistopathDysplasia(t *testing.T) {
	require.NoError(t, ValidateHistopath(Dysplasia, Grading{Risk: HighRisk, Tier: Severe}, ""))

	// Both binary risk and three-tier grade are mandatory.
	err := ValidateHistopath(Dysplasia, Grading{Risk: LowRisk}, "")
	require.ErrorIs(t, err, ErrIncompleteGrading)

	err = ValidateHistopath(Dysplasia, Grading{Tier: Mild}, "")
	require.ErrorIs(t, err, ErrIncompleteGrading)
}

func TestValidateHistopathIndeterminate(t *testing.T) {
	// Indeterminate demands a comment, exactly like Ungradable.
	err := ValidateHistopath(Indeterminate, Grading{}, "")
	require.ErrorIs(t, err, ErrCommentRequired)

	require.NoError(t, ValidateHistopath(Indeterminate, Grading{}, "section folded during prep"))

	err = ValidateHistopath(Indeterminate, Grading{Tier: Mild}, "commented")
	require.ErrorIs(t, err, ErrUnexpectedSubtype)
}

func TestUngradableRequiresComment(t *testing.T) {
	for _, diagnosis := range []string{Dysplasia, Cancer} {
		err := ValidateHistopath(diagnosis, Grading{Ungradable: true}, "")
		require.ErrorIs(t, err, ErrCommentRequired, diagnosis)

		require.NoError(t, ValidateHistopath(diagnosis, Grading{Ungradable: true}, "tissue torn"), diagnosis)
	}

	// Ungradable is a grading state on Dysplasia/Cancer only.
	err := ValidateHistopath(Normal, Grading{Ungradable: true}, "why not")
	require.ErrorIs(t, err, ErrUnexpectedSubtype)
}

func TestUngradableExcludesTiers(t *testing.T) {
	err := ValidateHistopath(Dysplasia, Grading{Ungradable: true, Tier: Mild}, "comment")
	require.ErrorIs(t, err, ErrConflictingGrading)

	err = ValidateHistopath(Cancer, Grading{Ungradable: true, Tier: PoorlyDifferentiated}, "comment")
	require.ErrorIs(t, err, ErrConflictingGrading)
}

func TestEncodeSubtype(t *testing.T) {
	require.Equal(t, "Epithelium", EncodeSubtype(Normal, Grading{Tissue: Epithelium}))
	require.Equal(t, "Binary:Low_Risk|ThreeTier:Moderate",
		EncodeSubtype(Dysplasia, Grading{Risk: LowRisk, Tier: Moderate}))
	require.Equal(t, "ThreeTier:Well_Differentiated",
		EncodeSubtype(Cancer, Grading{Tier: WellDifferentiated}))
	require.Equal(t, "Ungradable", EncodeSubtype(Cancer, Grading{Ungradable: true}))
	require.Equal(t, "", EncodeSubtype(Indeterminate, Grading{}))
}

func TestParseSubtypeRoundTrip(t *testing.T) {
	cases := []struct {
		diagnosis string
		grading   Grading
	}{
		{Normal, Grading{Tissue: Both}},
		{Dysplasia, Grading{Risk: HighRisk, Tier: Severe}},
		{Dysplasia, Grading{Ungradable: true}},
		{Cancer, Grading{Tier: ModeratelyDifferentiated}},
		{Cancer, Grading{Ungradable: true}},
	}
	for _, tc := range cases {
		encoded := EncodeSubtype(tc.diagnosis, tc.grading)
		parsed, err := ParseSubtype(tc.diagnosis, encoded)
		require.NoError(t, err, encoded)
		require.Equal(t, tc.grading, parsed, encoded)
	}
}

func TestParseSubtypeRejectsGarbage(t *testing.T) {
	_, err := ParseSubtype(Normal, "Cartilage")
	require.ErrorIs(t, err, ErrUnexpectedSubtype)

	_, err = ParseSubtype(Dysplasia, "not-a-subtype")
	require.ErrorIs(t, err, ErrUnexpectedSubtype)

	_, err = ParseSubtype(Indeterminate, "Ungradable:yes")
	require.ErrorIs(t, err, ErrUnexpectedSubtype)
}

func TestEntryValidate(t *testing.T) {
	clinical := Entry{Category: Suspicious}
	require.NoError(t, clinical.Validate(Clinical))

	clinical.Subtype = "Epithelium"
	require.ErrorIs(t, clinical.Validate(Clinical), ErrUnexpectedSubtype)

	histo := Entry{Category: Dysplasia, Subtype: "Binary:High_Risk|ThreeTier:Mild"}
	require.NoError(t, histo.Validate(Histopath))

	ungradable := Entry{Category: Cancer, Subtype: Ungradable}
	require.ErrorIs(t, ungradable.Validate(Histopath), ErrCommentRequired)
	ungradable.Comment = "out of focus"
	require.NoError(t, ungradable.Validate(Histopath))
}

func TestFlagged(t *testing.T) {
	require.True(t, Entry{Category: NA}.Flagged())
	require.True(t, Entry{Category: Indeterminate}.Flagged())
	require.True(t, Entry{Category: Dysplasia, Subtype: Ungradable}.Flagged())
	require.False(t, Entry{Category: Suspicious}.Flagged())
	require.False(t, Entry{Category: Normal, Subtype: "Stroma"}.Flagged())
}

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol("Clinical")
	require.NoError(t, err)
	require.Equal(t, Clinical, p)

	p, err = ParseProtocol("histopath")
	require.NoError(t, err)
	require.Equal(t, Histopath, p)

	_, err = ParseProtocol("radiology")
	require.Error(t, err)
}
