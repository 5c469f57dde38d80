package server

import (
	"time"

	"github.com/joseph-ayodele/labreport-extractor/constants"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
	"github.com/joseph-ayodele/labreport-extractor/internal/pipeline"
	"github.com/joseph-ayodele/labreport-extractor/internal/repository"
)

// ExtractionView is the JSON shape of one extraction on both surfaces.
type ExtractionView struct {
	ID               string            `json:"id"`
	FileName         string            `json:"file_name"`
	ContentHash      string            `json:"content_hash"`
	Pages            int               `json:"pages"`
	Status           string            `json:"status"`
	Cached           bool              `json:"cached"`
	Attempts         int               `json:"attempts,omitempty"`
	Repaired         bool              `json:"repaired,omitempty"`
	OCRMethod        string            `json:"ocr_method,omitempty"`
	Model            string            `json:"model,omitempty"`
	PromptTokens     int64             `json:"prompt_tokens,omitempty"`
	CompletionTokens int64             `json:"completion_tokens,omitempty"`
	Record           *labreport.Record `json:"record,omitempty"`
	RawResponse      string            `json:"raw_response,omitempty"`
	OCRText          string            `json:"ocr_text,omitempty"`
	ErrorKind        string            `json:"error_kind,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	TimingsMS        *TimingsView      `json:"timings_ms,omitempty"`
}

type TimingsView struct {
	OCR   int64 `json:"ocr"`
	LLM   int64 `json:"llm"`
	Total int64 `json:"total"`
}

// ParseErrorView is the 422 body for responses the parser rejected.
type ParseErrorView struct {
	Error      string          `json:"error"`
	Kind       string          `json:"kind"`
	Raw        string          `json:"raw"`
	Candidate  string          `json:"candidate,omitempty"`
	Extraction *ExtractionView `json:"extraction,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type RecordResponse struct {
	Record *labreport.Record `json:"record"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func resultView(res *pipeline.Result, withOCR bool) *ExtractionView {
	status := constants.StatusParsed
	if res.Record == nil {
		status = constants.StatusParseFailed
	}
	v := &ExtractionView{
		ID:               res.ID.String(),
		FileName:         res.FileName,
		ContentHash:      res.ContentHash,
		Pages:            res.Pages,
		Status:           string(status),
		Cached:           res.Cached,
		Attempts:         res.Attempts,
		Repaired:         res.Repaired,
		OCRMethod:        res.OCR.Method,
		Model:            res.Model,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		Record:           res.Record,
		RawResponse:      res.RawResponse,
		CreatedAt:        res.CreatedAt,
	}
	if withOCR {
		v.OCRText = res.OCR.Text
	}
	if !res.Cached {
		v.TimingsMS = &TimingsView{
			OCR:   res.Timings.OCR.Milliseconds(),
			LLM:   res.Timings.LLM.Milliseconds(),
			Total: res.Timings.Total.Milliseconds(),
		}
	}
	return v
}

func extractionView(e *repository.Extraction, withOCR bool) *ExtractionView {
	v := &ExtractionView{
		ID:               e.ID.String(),
		FileName:         e.FileName,
		ContentHash:      e.ContentHash,
		Pages:            e.Pages,
		Status:           string(e.Status),
		OCRMethod:        e.OCRMethod,
		Model:            e.Model,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		Record:           e.Record,
		RawResponse:      e.RawResponse,
		ErrorKind:        e.ErrorKind,
		ErrorMessage:     e.ErrorMessage,
		CreatedAt:        e.CreatedAt,
	}
	if withOCR {
		v.OCRText = e.OCRText
	}
	return v
}

func parseErrorView(pe *labreport.ParseError) ParseErrorView {
	return ParseErrorView{
		Error:     pe.Error(),
		Kind:      pe.Kind.String(),
		Raw:       pe.Raw,
		Candidate: pe.Candidate,
	}
}
