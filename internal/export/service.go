package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
	"github.com/joseph-ayodele/labreport-extractor/internal/repository"
)

const (
	reportSheet  = "Report"
	resultsSheet = "Analysis Results"
)

// Service renders parsed records, either given directly or loaded from the
// extraction history.
type Service struct {
	repo   repository.ExtractionRepository
	logger *slog.Logger
}

// NewService builds an export service. repo may be nil when only Render is used.
func NewService(repo repository.ExtractionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Render serializes rec in the requested format.
func (s *Service) Render(rec *labreport.Record, format Format) ([]byte, error) {
	if rec == nil {
		return nil, common.NewAppError("NO_RECORD", "nothing to export", common.ErrInvalidInput)
	}
	start := time.Now()

	var (
		out []byte
		err error
	)
	switch format {
	case FormatXLSX:
		out, err = XLSX(rec)
	case FormatCSV:
		out, err = CSV(rec)
	case FormatTXT:
		out = TXT(rec)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("export."+string(format)+".ok",
		"rows", len(rec.AnalysisResults),
		"bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// RenderExtraction loads a stored extraction and renders its record. The
// returned name is the download file name.
func (s *Service) RenderExtraction(ctx context.Context, id uuid.UUID, format Format) ([]byte, string, error) {
	if s.repo == nil {
		return nil, "", common.NewAppError("NO_STORE", "extraction history is disabled", common.ErrNotFound)
	}
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if e.Record == nil {
		return nil, "", common.NewAppError("NOT_PARSED",
			fmt.Sprintf("extraction %s has status %s", id, e.Status), common.ErrInvalidInput)
	}
	out, err := s.Render(e.Record, format)
	if err != nil {
		return nil, "", err
	}
	return out, FileName(e.FileName, format), nil
}

// FileName swaps the extension of the uploaded file for the export format.
func FileName(upload string, format Format) string {
	base := strings.TrimSuffix(filepath.Base(upload), filepath.Ext(upload))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "lab_report"
	}
	return base + "_extracted" + format.Extension()
}

// XLSX builds a workbook with a "Report" sheet (Section / Field / Value) and
// an "Analysis Results" sheet, rows in record order.
func XLSX(rec *labreport.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// Reuse the default Sheet1.
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(resultsSheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(reportSheet)
	f.SetActiveSheet(idx)

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	if err := writeRow(f, reportSheet, 1, []string{"Section", "Field", "Value"}); err != nil {
		return nil, err
	}
	row := 2
	for _, sec := range rec.Sections() {
		for _, fld := range sec.Fields {
			if err := writeRow(f, reportSheet, row, []string{sec.Label, fld.Label, labreport.Value(fld.Value)}); err != nil {
				return nil, err
			}
			row++
		}
	}
	if err := writeRow(f, reportSheet, row, []string{"Conclusion", "Conclusion", labreport.Value(rec.Conclusion)}); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(reportSheet, "A1", "C1", bold)
	_ = f.SetColWidth(reportSheet, "A", "A", 22)
	_ = f.SetColWidth(reportSheet, "B", "B", 26)
	_ = f.SetColWidth(reportSheet, "C", "C", 60)

	cols := labreport.ResultColumns()
	if err := writeRow(f, resultsSheet, 1, labels(cols)); err != nil {
		return nil, err
	}
	for i, r := range rec.AnalysisResults {
		if err := writeRow(f, resultsSheet, i+2, values(r.Fields())); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	_ = f.SetCellStyle(resultsSheet, "A1", last, bold)
	_ = f.SetColWidth(resultsSheet, "A", "A", 32)
	_ = f.SetColWidth(resultsSheet, "B", "E", 16)
	_ = f.SetColWidth(resultsSheet, "F", "F", 28)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []string) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(cells))
	for i, c := range cells {
		vals[i] = c
	}
	// Strings only: values like "007" or "1e3" must not be coerced to numbers.
	return f.SetSheetRow(sheet, start, &vals)
}

// CSV writes the analysis results table with a header row.
func CSV(rec *labreport.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(labels(labreport.ResultColumns())); err != nil {
		return nil, err
	}
	for _, r := range rec.AnalysisResults {
		if err := w.Write(values(r.Fields())); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	return buf.Bytes(), nil
}

// TXT is a plain-text dump of every section and result row.
func TXT(rec *labreport.Record) []byte {
	var b strings.Builder
	for _, sec := range rec.Sections() {
		fmt.Fprintf(&b, "%s\n%s\n", sec.Label, strings.Repeat("=", len(sec.Label)))
		for _, fld := range sec.Fields {
			fmt.Fprintf(&b, "%s: %s\n", fld.Label, labreport.Value(fld.Value))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s\n%s\n", resultsSheet, strings.Repeat("=", len(resultsSheet)))
	if len(rec.AnalysisResults) == 0 {
		b.WriteString("(none)\n")
	}
	for i, r := range rec.AnalysisResults {
		fmt.Fprintf(&b, "%d.", i+1)
		for _, fld := range r.Fields() {
			fmt.Fprintf(&b, " %s: %s;", fld.Label, labreport.Value(fld.Value))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nConclusion\n==========\n%s\n", labreport.Value(rec.Conclusion))
	return []byte(b.String())
}

func labels(fields []labreport.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Label
	}
	return out
}

func values(fields []labreport.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = labreport.Value(f.Value)
	}
	return out
}
