package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport-extractor/constants"
	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStore implements ExtractionRepository over database/sql for both
// backends. Queries are written with ? placeholders and rebound per dialect.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
	onClose func()
}

func (s *sqlStore) migrate(ctx context.Context) error {
	recordType := "TEXT"
	if s.dialect == dialectPostgres {
		recordType = "JSONB"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS extractions (
			id                TEXT PRIMARY KEY,
			content_hash      TEXT NOT NULL UNIQUE,
			file_name         TEXT NOT NULL DEFAULT '',
			pages             INTEGER NOT NULL DEFAULT 0,
			status            TEXT NOT NULL,
			ocr_method        TEXT NOT NULL DEFAULT '',
			ocr_text          TEXT NOT NULL DEFAULT '',
			raw_response      TEXT NOT NULL DEFAULT '',
			record_json       ` + recordType + `,
			error_kind        TEXT NOT NULL DEFAULT '',
			error_message     TEXT NOT NULL DEFAULT '',
			model             TEXT NOT NULL DEFAULT '',
			prompt_tokens     BIGINT NOT NULL DEFAULT 0,
			completion_tokens BIGINT NOT NULL DEFAULT 0,
			created_at_ms     BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS extractions_created_at_idx ON extractions (created_at_ms DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *sqlStore) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const selectColumns = `id, content_hash, file_name, pages, status, ocr_method, ocr_text, raw_response,
	record_json, error_kind, error_message, model, prompt_tokens, completion_tokens, created_at_ms`

func (s *sqlStore) Save(ctx context.Context, e *Extraction) (*Extraction, error) {
	if e == nil || e.ContentHash == "" {
		return nil, common.NewAppError("INVALID_EXTRACTION", "content hash is required", common.ErrInvalidInput)
	}

	var recordJSON sql.NullString
	if e.Record != nil {
		b, err := json.Marshal(e.Record)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		if err := labreport.CheckConformance(b); err != nil {
			return nil, common.NewAppError("INVALID_RECORD", "record failed schema check", errors.Join(common.ErrValidation, err))
		}
		recordJSON = sql.NullString{String: string(b), Valid: true}
	}

	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	q := s.rebind(`INSERT INTO extractions (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_hash) DO UPDATE SET
			file_name = excluded.file_name,
			pages = excluded.pages,
			status = excluded.status,
			ocr_method = excluded.ocr_method,
			ocr_text = excluded.ocr_text,
			raw_response = excluded.raw_response,
			record_json = excluded.record_json,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			model = excluded.model,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			created_at_ms = excluded.created_at_ms
		WHERE extractions.status <> ?`)

	_, err := s.db.ExecContext(ctx, q,
		id.String(), e.ContentHash, e.FileName, e.Pages, string(e.Status), e.OCRMethod, e.OCRText, e.RawResponse,
		recordJSON, e.ErrorKind, e.ErrorMessage, e.Model, e.PromptTokens, e.CompletionTokens, created.UnixMilli(),
		string(constants.StatusParsed),
	)
	if err != nil {
		s.logger.Error("repository.save.failed", "hash", e.ContentHash, "error", err)
		return nil, fmt.Errorf("%w: save extraction: %v", common.ErrDatabase, err)
	}

	saved, err := s.GetByHash(ctx, e.ContentHash)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("repository.save.ok", "id", saved.ID, "hash", saved.ContentHash, "status", saved.Status)
	return saved, nil
}

func (s *sqlStore) GetByID(ctx context.Context, id uuid.UUID) (*Extraction, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+selectColumns+` FROM extractions WHERE id = ?`), id.String())
	return s.scanOne(row, "id "+id.String())
}

func (s *sqlStore) GetByHash(ctx context.Context, hash string) (*Extraction, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+selectColumns+` FROM extractions WHERE content_hash = ?`), hash)
	return s.scanOne(row, "hash "+hash)
}

func (s *sqlStore) List(ctx context.Context, limit int) ([]Extraction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+selectColumns+` FROM extractions ORDER BY created_at_ms DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list extractions: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	out := make([]Extraction, 0, limit)
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list extractions: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", common.ErrDatabase, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	err := s.db.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *sqlStore) scanOne(row scanner, what string) (*Extraction, error) {
	e, err := scanExtraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("extraction %s: %w", what, common.ErrNotFound)
	}
	return e, err
}

func scanExtraction(row scanner) (*Extraction, error) {
	var (
		e          Extraction
		id, status string
		recordJSON sql.NullString
		createdMS  int64
	)
	err := row.Scan(&id, &e.ContentHash, &e.FileName, &e.Pages, &status, &e.OCRMethod, &e.OCRText, &e.RawResponse,
		&recordJSON, &e.ErrorKind, &e.ErrorMessage, &e.Model, &e.PromptTokens, &e.CompletionTokens, &createdMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan extraction: %v", common.ErrDatabase, err)
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: bad extraction id %q: %v", common.ErrDatabase, id, err)
	}
	e.Status = constants.ExtractionStatus(status)
	e.CreatedAt = time.UnixMilli(createdMS).UTC()
	if recordJSON.Valid {
		var rec labreport.Record
		if err := json.Unmarshal([]byte(recordJSON.String), &rec); err != nil {
			return nil, fmt.Errorf("%w: decode record: %v", common.ErrDatabase, err)
		}
		e.Record = &rec
	}
	return &e, nil
}

var _ ExtractionRepository = (*sqlStore)(nil)
