// Package ocrtest provides fixtures for code that consumes ocr.Extractor.
package ocrtest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/joseph-ayodele/labreport-extractor/internal/ocr"
)

// MinimalPDF returns a structurally valid PDF with the given number of blank pages.
func MinimalPDF(pages int) []byte {
	if pages < 1 {
		pages = 1
	}
	var b bytes.Buffer
	offsets := make([]int, 0, pages+2)
	obj := func(body string) {
		offsets = append(offsets, b.Len())
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	b.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(offsets)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return b.Bytes()
}

// Static is an ocr.Extractor that always returns the same result.
type Static struct {
	Result ocr.Result
	Err    error
	calls  atomic.Int32
}

func (s *Static) Extract(ctx context.Context, doc ocr.Document) (ocr.Result, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	return s.Result, s.Err
}

// Calls reports how many times Extract ran.
func (s *Static) Calls() int { return int(s.calls.Load()) }

// Text builds a Static extractor that returns text as a single page.
func Text(text string) *Static {
	return &Static{Result: ocr.Result{Text: text, Pages: 1, Method: "static"}}
}

var _ ocr.Extractor = (*Static)(nil)
