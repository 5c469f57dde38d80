// Package pipeline runs one uploaded report through OCR, the model and the
// parser, and records the outcome.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/joseph-ayodele/labreport-extractor/constants"
	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
	"github.com/joseph-ayodele/labreport-extractor/internal/llm"
	"github.com/joseph-ayodele/labreport-extractor/internal/ocr"
	"github.com/joseph-ayodele/labreport-extractor/internal/repository"
)

// ErrInvalidDocument is returned for uploads rejected before any upstream call.
var ErrInvalidDocument = fmt.Errorf("invalid document: %w", common.ErrInvalidInput)

type Config struct {
	ParseAttempts  int           // model calls per document while the reply fails to parse, default 1
	RetryDelay     time.Duration // pause between those calls
	RepairJSON     bool          // try one jsonrepair pass before counting an attempt as failed
	MaxUploadBytes int64         // 0 = no limit
	MaxPages       int           // 0 = no limit
}

type Timings struct {
	OCR   time.Duration
	LLM   time.Duration
	Total time.Duration
}

// Result describes one processed document. On a parse failure it is returned
// together with the *labreport.ParseError, with Record nil.
type Result struct {
	ID               uuid.UUID
	ContentHash      string
	FileName         string
	Pages            int
	OCR              ocr.Result
	RawResponse      string
	Record           *labreport.Record
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	Attempts         int
	Repaired         bool
	Cached           bool
	CreatedAt        time.Time
	Timings          Timings
}

// Processor coordinates OCR, completion and parsing.
type Processor struct {
	cfg    Config
	ocr    ocr.Extractor
	llm    llm.Completer
	repo   repository.ExtractionRepository
	logger *slog.Logger
}

// NewProcessor wires the collaborators. repo may be nil, which disables the
// content-hash cache and history.
func NewProcessor(cfg Config, extractor ocr.Extractor, completer llm.Completer, repo repository.ExtractionRepository, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ParseAttempts <= 0 {
		cfg.ParseAttempts = 1
	}
	return &Processor{cfg: cfg, ocr: extractor, llm: completer, repo: repo, logger: logger}
}

// Process runs the whole pipeline for doc.
func (p *Processor) Process(ctx context.Context, doc ocr.Document) (*Result, error) {
	start := time.Now()
	ctx, reqID := common.EnsureRequestID(ctx)
	log := p.logger.With("req_id", reqID, "name", doc.Name)

	// 1) validate
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidDocument)
	}
	if p.cfg.MaxUploadBytes > 0 && int64(len(doc.Data)) > p.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidDocument, len(doc.Data), p.cfg.MaxUploadBytes)
	}
	if !constants.LooksLikePDF(doc.Data) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, ocr.ErrNotPDF)
	}

	// 2) cache
	sum := sha256.Sum256(doc.Data)
	hash := hex.EncodeToString(sum[:])
	if cached, ok := p.lookup(ctx, log, hash); ok {
		return cached, nil
	}

	// 3) page count
	pages, err := ocr.InspectPDF(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if p.cfg.MaxPages > 0 && pages > p.cfg.MaxPages {
		return nil, fmt.Errorf("%w: %d pages exceeds limit of %d", ErrInvalidDocument, pages, p.cfg.MaxPages)
	}

	res := &Result{ContentHash: hash, FileName: doc.Name, Pages: pages}

	// 4) OCR
	ocrStart := time.Now()
	ocrRes, err := p.ocr.Extract(ctx, doc)
	res.Timings.OCR = time.Since(ocrStart)
	if err != nil {
		log.Error("pipeline.ocr.failed", "error", err, "elapsed_ms", res.Timings.OCR.Milliseconds())
		p.record(ctx, log, res, constants.StatusFailed, err)
		return nil, fmt.Errorf("ocr: %w", err)
	}
	res.OCR = ocrRes
	log.Info("pipeline.ocr.ok", "method", ocrRes.Method, "pages", ocrRes.Pages, "text_len", len(ocrRes.Text),
		"elapsed_ms", res.Timings.OCR.Milliseconds())

	// 5-6) completion and parse
	llmStart := time.Now()
	err = p.completeAndParse(ctx, log, res)
	res.Timings.LLM = time.Since(llmStart)
	res.Timings.Total = time.Since(start)

	if err != nil {
		if pe, ok := labreport.AsParseError(err); ok {
			log.Warn("pipeline.parse.failed", "kind", pe.Kind.String(), "attempts", res.Attempts,
				"raw_len", len(pe.Raw), "elapsed_ms", res.Timings.Total.Milliseconds())
			p.record(ctx, log, res, constants.StatusParseFailed, err)
			return res, err
		}
		log.Error("pipeline.llm.failed", "error", err, "elapsed_ms", res.Timings.LLM.Milliseconds())
		p.record(ctx, log, res, constants.StatusFailed, err)
		return nil, fmt.Errorf("llm: %w", err)
	}

	// 7) save
	p.record(ctx, log, res, constants.StatusParsed, nil)
	log.Info("pipeline.process.ok",
		"id", res.ID,
		"rows", len(res.Record.AnalysisResults),
		"attempts", res.Attempts,
		"repaired", res.Repaired,
		"elapsed_ms", res.Timings.Total.Milliseconds(),
	)
	return res, nil
}

// completeAndParse asks the model and parses the reply, re-asking only while
// the reply fails to parse. Transport errors stop immediately.
func (p *Processor) completeAndParse(ctx context.Context, log *slog.Logger, res *Result) error {
	return retry.Do(
		func() error {
			res.Attempts++
			resp, err := p.llm.Complete(ctx, llm.Request{Text: res.OCR.Text, Name: res.FileName})
			if err != nil {
				return err
			}
			res.RawResponse = resp.Content
			res.Model = resp.Model
			res.PromptTokens += resp.PromptTokens
			res.CompletionTokens += resp.CompletionTokens

			rec, repaired, err := p.parse(resp.Content)
			if err != nil {
				return err
			}
			res.Record = rec
			res.Repaired = repaired
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.cfg.ParseAttempts)),
		retry.Delay(p.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			_, ok := labreport.AsParseError(err)
			return ok
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("pipeline.parse.retry", "attempt", n+1, "error", err)
		}),
	)
}

// parse runs labreport.Parse and, when enabled, one repair pass over the text
// the parser tried to decode. The original ParseError is kept if repair fails.
func (p *Processor) parse(raw string) (*labreport.Record, bool, error) {
	rec, err := labreport.Parse(raw)
	if err == nil || !p.cfg.RepairJSON {
		return rec, false, err
	}
	pe, ok := labreport.AsParseError(err)
	if !ok {
		return nil, false, err
	}

	var target string
	switch pe.Kind {
	case labreport.KindInvalidJSONInFence:
		target = pe.Candidate
	case labreport.KindNoJSONFound:
		target = raw
	default:
		return nil, false, err
	}
	fixed, rerr := jsonrepair.JSONRepair(target)
	if rerr != nil {
		return nil, false, err
	}
	rec, rerr = labreport.Parse(fixed)
	if rerr != nil {
		return nil, false, err
	}
	p.logger.Debug("pipeline.parse.repaired", "kind", pe.Kind.String())
	return rec, true, nil
}

// ParseOnly runs the parser on an already obtained model response.
func (p *Processor) ParseOnly(raw string) (*labreport.Record, error) {
	rec, _, err := p.parse(raw)
	return rec, err
}

func (p *Processor) lookup(ctx context.Context, log *slog.Logger, hash string) (*Result, bool) {
	if p.repo == nil {
		return nil, false
	}
	e, err := p.repo.GetByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			log.Warn("pipeline.cache.lookup_failed", "hash", hash, "error", err)
		}
		return nil, false
	}
	if e.Status != constants.StatusParsed || e.Record == nil {
		return nil, false
	}
	log.Info("pipeline.cache.hit", "id", e.ID, "hash", hash)
	res := FromExtraction(e)
	res.Cached = true
	return res, true
}

// record persists the outcome when a repository is configured. Storage
// failures are logged and never fail the request.
func (p *Processor) record(ctx context.Context, log *slog.Logger, res *Result, status constants.ExtractionStatus, cause error) {
	if p.repo == nil {
		res.ID = uuid.New()
		res.CreatedAt = time.Now().UTC()
		return
	}
	e := &repository.Extraction{
		ContentHash:      res.ContentHash,
		FileName:         res.FileName,
		Pages:            res.Pages,
		Status:           status,
		OCRMethod:        res.OCR.Method,
		OCRText:          res.OCR.Text,
		RawResponse:      res.RawResponse,
		Record:           res.Record,
		Model:            res.Model,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
	}
	if cause != nil {
		e.ErrorMessage = cause.Error()
		if pe, ok := labreport.AsParseError(cause); ok {
			e.ErrorKind = pe.Kind.String()
		}
	}
	saved, err := p.repo.Save(ctx, e)
	if err != nil {
		log.Error("pipeline.save.failed", "hash", res.ContentHash, "status", status, "error", err)
		res.ID = uuid.New()
		res.CreatedAt = time.Now().UTC()
		return
	}
	res.ID = saved.ID
	res.CreatedAt = saved.CreatedAt
}

// FromExtraction rebuilds a Result from a stored row.
func FromExtraction(e *repository.Extraction) *Result {
	return &Result{
		ID:          e.ID,
		ContentHash: e.ContentHash,
		FileName:    e.FileName,
		Pages:       e.Pages,
		OCR: ocr.Result{
			Text:   e.OCRText,
			Pages:  e.Pages,
			Method: e.OCRMethod,
		},
		RawResponse:      e.RawResponse,
		Record:           e.Record,
		Model:            e.Model,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		CreatedAt:        e.CreatedAt,
	}
}
