// Package llm holds the prompt and the chat completion backends that turn OCR
// text into a raw model response for labreport.Parse.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyResponse is returned when a backend answers without any choice.
var ErrEmptyResponse = errors.New("model returned no choices")

type Request struct {
	Text string // OCR text, pages joined with ocr.PageSeparator
	Name string // original file name, for logs only
}

// Response carries the model text exactly as received. Content is never
// trimmed or repaired here.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	Duration         time.Duration
}

// Completer is the interface our pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
