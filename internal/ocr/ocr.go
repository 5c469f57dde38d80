// Package ocr turns uploaded PDF documents into plain text for the model.
package ocr

import (
	"context"
	"errors"
	"strings"
	"time"
)

// PageSeparator joins page texts. The model prompt refers to this marker.
const PageSeparator = "\n\n==NEW_PAGE==\n\n"

const (
	MethodMistral   = "mistral-ocr"
	MethodPDFToText = "pdftotext"
)

// ErrNoPages is returned when a provider answers without any page text.
var ErrNoPages = errors.New("ocr returned no pages")

// Document is one uploaded file held in memory.
type Document struct {
	Name string
	Data []byte
}

type Result struct {
	Text     string
	Pages    int
	Method   string // MethodMistral | MethodPDFToText
	Model    string
	Duration time.Duration
	Warnings []string
}

// Extractor is implemented by every OCR backend.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (Result, error)
}

// JoinPages concatenates page texts with PageSeparator, skipping blank pages.
func JoinPages(pages []string) string {
	var b strings.Builder
	for _, p := range pages {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(PageSeparator)
		}
		b.WriteString(p)
	}
	return b.String()
}
