package ocr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/labreport-extractor/internal/ocr"
	"github.com/joseph-ayodele/labreport-extractor/internal/ocr/ocrtest"
)

func TestInspectPDF(t *testing.T) {
	for _, n := range []int{1, 3} {
		pages, err := ocr.InspectPDF(ocrtest.MinimalPDF(n))
		require.NoError(t, err)
		assert.Equal(t, n, pages)
	}
}

func TestInspectPDF_Rejects(t *testing.T) {
	_, err := ocr.InspectPDF([]byte("PK\x03\x04 zip"))
	assert.ErrorIs(t, err, ocr.ErrNotPDF)

	_, err = ocr.InspectPDF([]byte("%PDF-1.4\ngarbage"))
	assert.Error(t, err)
}
