package labreport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConformance_ParsedRecord(t *testing.T) {
	rec, err := Parse("```json\n" + mustJSON(t, sampleRecord()) + "\n```")
	require.NoError(t, err)

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NoError(t, CheckConformance(b))
}

func TestCheckConformance_EmptyRecord(t *testing.T) {
	b, err := json.Marshal(&Record{})
	require.NoError(t, err)
	assert.NoError(t, CheckConformance(b))
}

func TestCheckConformance_Rejects(t *testing.T) {
	cases := map[string]string{
		"extra top-level key": `{"report_info":{},"client_info":{},"sample_info":{},"analysis_results":null,"conclusion":null,"notes":"x"}`,
		"number leaf":         `{"report_info":{"lab_name":3}}`,
		"extra row key":       `{"analysis_results":[{"parameter":"pH","loq":"0.1"}]}`,
		"results as string":   `{"analysis_results":"none"}`,
		"not json":            `{`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, CheckConformance([]byte(data)))
		})
	}
}

func TestBuildRecordJSONSchema_ListsEveryField(t *testing.T) {
	s := BuildRecordJSONSchema()
	props := s["properties"].(map[string]any)

	for _, key := range []string{"report_info", "client_info", "sample_info", "analysis_results", "conclusion"} {
		assert.Contains(t, props, key)
	}

	sample := props["sample_info"].(map[string]any)["properties"].(map[string]any)
	assert.Len(t, sample, 10)
	assert.Contains(t, sample, "ean_code")

	items := props["analysis_results"].(map[string]any)["items"].(map[string]any)["properties"].(map[string]any)
	assert.Len(t, items, len(ResultColumns()))
}

func TestSectionsAndLabels(t *testing.T) {
	rec := sampleRecord()
	sections := rec.Sections()
	require.Len(t, sections, 3)

	assert.Equal(t, "Report", sections[0].Label)
	assert.Equal(t, "lab_name", sections[0].Fields[0].Key)
	assert.Equal(t, "Laboratory Name", sections[0].Fields[0].Label)
	assert.Equal(t, "Laboratoire Central", Value(sections[0].Fields[0].Value))

	cols := ResultColumns()
	require.Len(t, cols, 6)
	assert.Equal(t, "Parameter", cols[0].Label)
	assert.Equal(t, "Method", cols[5].Label)
	for _, c := range cols {
		assert.Nil(t, c.Value)
	}

	assert.Equal(t, "EAN Code", Label("ean_code"))
	assert.Equal(t, "unknown_key", Label("unknown_key"))
}
