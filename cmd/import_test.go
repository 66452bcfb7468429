package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestImportFieldMatching(t *testing.T) {
	// CSV-style and lowercase key spellings both resolve.
	row := gjson.Parse(`{"Case_ID":"Case_001","Time_Spent_sec":12.5,"Diagnosis":"Normal"}`)
	require.Equal(t, "Case_001", firstString(row, "case_id", "case", "Case_ID"))
	require.Equal(t, "Normal", firstString(row, "category", "diagnosis", "label", "Diagnosis"))
	require.Equal(t, 12.5, firstFloat(row, "time_spent", "Time_Spent_sec"))

	row = gjson.Parse(`{"case":"Case_002","time_spent":3}`)
	require.Equal(t, "Case_002", firstString(row, "case_id", "case", "Case_ID"))
	require.Equal(t, 3.0, firstFloat(row, "time_spent", "Time_Spent_sec"))

	require.Empty(t, firstString(row, "comment", "Comment"))
	require.Equal(t, 0.0, firstFloat(row, "no_such_key"))
}
