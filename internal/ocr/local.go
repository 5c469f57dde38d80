package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalConfig configures the pdftotext backend.
type LocalConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	TempDir   string
}

// LocalExtractor reads the embedded text layer of a PDF with poppler's
// pdftotext. Scanned documents without a text layer come back empty and are
// reported as ErrNoPages.
type LocalExtractor struct {
	cfg    LocalConfig
	runner Runner
	logger *slog.Logger
}

func NewLocalExtractor(cfg LocalConfig, runner Runner, logger *slog.Logger) *LocalExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &LocalExtractor{cfg: cfg, runner: runner, logger: logger}
}

func (e *LocalExtractor) Extract(ctx context.Context, doc Document) (Result, error) {
	start := time.Now()
	res := Result{Method: MethodPDFToText}

	tmp, err := os.CreateTemp(e.cfg.TempDir, "labreport-*.pdf")
	if err != nil {
		return res, fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(doc.Data); err != nil {
		_ = tmp.Close()
		return res, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return res, fmt.Errorf("close temp file: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", filepath.Clean(tmp.Name()), "-")
	if err != nil {
		if s := strings.TrimSpace(string(errb)); s != "" {
			res.Warnings = append(res.Warnings, s)
		}
		return res, fmt.Errorf("pdftotext: %w", err)
	}

	// form feed separates pages; the last one is followed by a trailing \f
	pages := strings.Split(strings.TrimSuffix(string(out), "\f"), "\f")
	for i := range pages {
		pages[i] = Normalize(pages[i])
	}
	res.Text = JoinPages(pages)
	res.Pages = len(pages)
	res.Duration = time.Since(start)
	if res.Text == "" {
		return res, ErrNoPages
	}

	e.logger.Info("ocr.pdftotext.ok",
		"name", doc.Name,
		"pages", res.Pages,
		"text_len", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

var _ Extractor = (*LocalExtractor)(nil)
