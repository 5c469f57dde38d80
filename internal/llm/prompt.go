package llm

import (
	"strings"

	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
)

// MaxPromptChars caps the OCR text placed in the user message.
const MaxPromptChars = 60000

const pageMarker = "==NEW_PAGE=="

// BuildSystemPrompt composes the fixed instructions for lab analysis reports:
// the role, the fields to find, the page marker and the expected JSON shape.
func BuildSystemPrompt() string {
	parts := []string{
		"You are an expert in analyzing laboratory food analysis reports.",
		"You will receive the full text extracted from such a report using OCR.",
		"The text may contain several pages separated by '" + pageMarker + "'.",
		"Extract the report, client and sample details and the conclusion, and copy every row of the analysis results tables into 'analysis_results', keeping the order in which rows appear.",
		"Each row has the columns 'parameter', 'result', 'unit', 'specification', 'uncertainty' and 'method'.",
		"Copy values exactly as printed, as strings. Use null for anything the report does not show; do not guess.",
		"Return only a JSON object with this structure:\n" + RecordTemplate(),
		"Place the JSON object inside a markdown code block that starts with " + labreport.FenceOpen + " and ends with " + labreport.FenceClose + ".",
	}
	return strings.Join(parts, "\n")
}

// BuildUserPrompt wraps the OCR text, truncated to MaxPromptChars runes.
func BuildUserPrompt(text string) string {
	var b strings.Builder
	b.WriteString("OCR text of the report:\n\n")
	if r := []rune(text); len(r) > MaxPromptChars {
		b.WriteString(string(r[:MaxPromptChars]))
		b.WriteString("\n[... text truncated ...]")
	} else {
		b.WriteString(text)
	}
	return b.String()
}

// RecordTemplate renders the expected object with "string or null"
// placeholders, keys in display order.
func RecordTemplate() string {
	const placeholder = `"string or null"`
	var b strings.Builder
	b.WriteString("{\n")
	var rec labreport.Record
	for _, s := range rec.Sections() {
		b.WriteString(`  "` + s.Key + `": {` + "\n")
		writeFields(&b, s.Fields, "    ", placeholder)
		b.WriteString("  },\n")
	}
	b.WriteString(`  "analysis_results": [` + "\n    {\n")
	writeFields(&b, labreport.ResultColumns(), "      ", placeholder)
	b.WriteString("    }\n  ],\n")
	b.WriteString(`  "conclusion": ` + placeholder + "\n}")
	return b.String()
}

func writeFields(b *strings.Builder, fields []labreport.Field, indent, placeholder string) {
	for i, f := range fields {
		b.WriteString(indent + `"` + f.Key + `": ` + placeholder)
		if i < len(fields)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
}
