package labreport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var sectionLabels = map[string]string{
	"report_info": "Report",
	"client_info": "Client",
	"sample_info": "Sample",
}

var fieldLabels = map[string]string{
	"lab_name":         "Laboratory Name",
	"report_id":        "Report ID",
	"issue_date":       "Issue Date",
	"validation_date":  "Validation Date",
	"validator_name":   "Validator Name",
	"client_name":      "Client Name",
	"client_address":   "Client Address",
	"client_id":        "Client ID",
	"product_name":     "Product Name",
	"lot_number":       "Lot Number",
	"sample_id":        "Sample ID",
	"date_received":    "Date Received",
	"date_analyzed":    "Date Analyzed",
	"date_collected":   "Date Collected",
	"product_format":   "Product Format",
	"best_before_date": "Best Before Date",
	"supplier":         "Supplier",
	"ean_code":         "EAN Code",
	"parameter":        "Parameter",
	"result":           "Result",
	"unit":             "Unit",
	"specification":    "Specification",
	"uncertainty":      "Uncertainty",
	"method":           "Method",
	"conclusion":       "Conclusion",
}

// Label returns the display label for a schema key.
func Label(key string) string {
	if l, ok := fieldLabels[key]; ok {
		return l
	}
	if l, ok := sectionLabels[key]; ok {
		return l
	}
	return key
}

// resultsShapeSchema only constrains analysis_results; every other key is
// handled leniently by the decoder.
const resultsShapeSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"analysis_results": {
			"type": ["array", "null"],
			"items": {"type": "object"}
		}
	}
}`

var (
	resultsShape = jsonschema.MustCompileString("results_shape.json", resultsShapeSchema)
	conformance  = mustCompileMap("record.json", BuildRecordJSONSchema())
)

// BuildRecordJSONSchema returns the JSON Schema (draft 2020-12) of a Record.
// It is sent to the model as the expected shape and used to check serialized
// records before they leave the process.
func BuildRecordJSONSchema() map[string]any {
	var (
		ri ReportInfo
		ci ClientInfo
		si SampleInfo
		ar AnalysisResult
	)
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"report_info": objectOf(ri.bindings()),
			"client_info": objectOf(ci.bindings()),
			"sample_info": objectOf(si.bindings()),
			"analysis_results": map[string]any{
				"type":  []string{"array", "null"},
				"items": objectOf(ar.bindings()),
			},
			"conclusion": nullableString(),
		},
	}
}

func objectOf(bs []binding) map[string]any {
	props := make(map[string]any, len(bs))
	for _, b := range bs {
		props[b.key] = nullableString()
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func nullableString() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}

// CheckConformance validates serialized record JSON against the record schema.
func CheckConformance(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	if err := conformance.Validate(v); err != nil {
		return fmt.Errorf("record does not match schema: %w", err)
	}
	return nil
}

func mustCompileMap(url string, schemaMap map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("marshal schema %s: %v", url, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", url, err))
	}
	return compiler.MustCompile(url)
}
