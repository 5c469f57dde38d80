package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/labreport-extractor/constants"
	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
	"github.com/joseph-ayodele/labreport-extractor/internal/repository"
)

func sampleRecord(t *testing.T) *labreport.Record {
	t.Helper()
	rec, err := labreport.Parse(`{
		"report_info": {"lab_name": "LDA 22", "report_id": "007"},
		"sample_info": {"ean_code": "1e3"},
		"analysis_results": [
			{"parameter": "pH", "result": "6.8"},
			{"parameter": "Lead, total", "result": "<0.01", "unit": "mg/kg", "method": "ICP-MS"}
		],
		"conclusion": "Compliant"
	}`)
	require.NoError(t, err)
	return rec
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatXLSX, "XLSX": FormatXLSX, ".csv": FormatCSV, "txt": FormatTXT, " text ": FormatTXT}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	assert.Equal(t, ".xlsx", FormatXLSX.Extension())
	assert.Contains(t, FormatCSV.ContentType(), "text/csv")
	assert.Equal(t, "application/octet-stream", Format("zip").ContentType())
}

func TestXLSX(t *testing.T) {
	out, err := XLSX(sampleRecord(t))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Report", "Analysis Results"}, f.GetSheetList())

	report, err := f.GetRows("Report")
	require.NoError(t, err)
	require.Len(t, report, 1+5+3+10+1)
	assert.Equal(t, []string{"Section", "Field", "Value"}, report[0])
	assert.Equal(t, []string{"Report", "Laboratory Name", "LDA 22"}, report[1])
	assert.Equal(t, []string{"Report", "Report ID", "007"}, report[2], "leading zeros survive")
	assert.Equal(t, []string{"Conclusion", "Conclusion", "Compliant"}, report[len(report)-1])

	typ, err := f.GetCellType("Report", "C3")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeNumber, typ)

	results, err := f.GetRows("Analysis Results")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"Parameter", "Result", "Unit", "Specification", "Uncertainty", "Method"}, results[0])
	assert.Equal(t, "pH", results[1][0])
	assert.Equal(t, []string{"Lead, total", "<0.01", "mg/kg", "", "", "ICP-MS"}, results[2])
}

func TestCSV(t *testing.T) {
	out, err := CSV(sampleRecord(t))
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Parameter", rows[0][0])
	assert.Equal(t, []string{"pH", "6.8", "", "", "", ""}, rows[1])
	assert.Equal(t, "Lead, total", rows[2][0])
}

func TestTXT(t *testing.T) {
	out := string(TXT(sampleRecord(t)))
	assert.Contains(t, out, "Laboratory Name: LDA 22\n")
	assert.Contains(t, out, "Client Name: \n")
	assert.Contains(t, out, "2. Parameter: Lead, total; Result: <0.01;")
	assert.Contains(t, out, "Conclusion\n==========\nCompliant\n")

	empty := string(TXT(&labreport.Record{}))
	assert.Contains(t, empty, "Analysis Results\n================\n(none)\n")
}

func TestServiceRender(t *testing.T) {
	s := NewService(nil, nil)

	_, err := s.Render(nil, FormatCSV)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = s.Render(sampleRecord(t), Format("pdf"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	out, err := s.Render(sampleRecord(t), FormatTXT)
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, _, err = s.RenderExtraction(context.Background(), uuid.New(), FormatCSV)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestServiceRenderExtraction(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.Open(ctx, repository.Config{}, nil)
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	parsed, err := repo.Save(ctx, &repository.Extraction{
		ContentHash: "h-parsed",
		FileName:    "uploads/LDA 2403.pdf",
		Status:      constants.StatusParsed,
		Record:      sampleRecord(t),
	})
	require.NoError(t, err)
	failed, err := repo.Save(ctx, &repository.Extraction{
		ContentHash: "h-failed",
		FileName:    "bad.pdf",
		Status:      constants.StatusParseFailed,
	})
	require.NoError(t, err)

	s := NewService(repo, nil)

	out, name, err := s.RenderExtraction(ctx, parsed.ID, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "LDA 2403_extracted.csv", name)
	assert.Contains(t, string(out), "Lead, total")

	_, _, err = s.RenderExtraction(ctx, failed.ID, FormatCSV)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "report_extracted.xlsx", FileName("report.pdf", FormatXLSX))
	assert.Equal(t, "lab_report_extracted.txt", FileName("", FormatTXT))
}
