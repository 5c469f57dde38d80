package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport-extractor/constants"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
)

// Extraction is one processed upload. Record is nil unless Status is
// constants.StatusParsed.
type Extraction struct {
	ID               uuid.UUID
	ContentHash      string
	FileName         string
	Pages            int
	Status           constants.ExtractionStatus
	OCRMethod        string
	OCRText          string
	RawResponse      string
	Record           *labreport.Record
	ErrorKind        string
	ErrorMessage     string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	CreatedAt        time.Time
}

// ExtractionRepository stores extraction history. Lookups of missing rows
// return an error wrapping common.ErrNotFound.
type ExtractionRepository interface {
	// Save inserts e, or returns the stored row when a parsed extraction
	// with the same content hash already exists. Failed rows are replaced.
	Save(ctx context.Context, e *Extraction) (*Extraction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Extraction, error)
	GetByHash(ctx context.Context, hash string) (*Extraction, error)
	// List returns the newest extractions first.
	List(ctx context.Context, limit int) ([]Extraction, error)
	Ping(ctx context.Context) error
	Close() error
}
