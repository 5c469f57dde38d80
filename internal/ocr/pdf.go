package ocr

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/labreport-extractor/constants"
)

// ErrNotPDF is returned for data that does not carry a PDF header.
var ErrNotPDF = errors.New("document is not a pdf")

// InspectPDF checks the PDF header and returns the page count, using relaxed
// validation.
func InspectPDF(data []byte) (int, error) {
	if !constants.LooksLikePDF(data) {
		return 0, ErrNotPDF
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return n, nil
}
