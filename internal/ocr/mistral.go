package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/labreport-extractor/constants"
	"github.com/joseph-ayodele/labreport-extractor/internal/common"
)

const (
	MistralBaseURL = "https://api.mistral.ai/v1"
	MistralModel   = "mistral-ocr-latest"

	UploadSignedURL = "signed_url"
	UploadInline    = "inline"
)

// MistralConfig holds configuration for the Mistral OCR client.
type MistralConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	UploadMode string        // UploadSignedURL (default) | UploadInline
	RateLimit  float64       // requests per second across all calls, default 1
	Timeout    time.Duration // per HTTP request
	HTTPClient *http.Client
}

// MistralClient extracts document text with the Mistral OCR API. In signed
// URL mode the PDF is uploaded to the files API first and OCR reads it back
// by URL; inline mode embeds the PDF as a data URL.
type MistralClient struct {
	cfg     MistralConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewMistralClient(cfg MistralConfig, logger *slog.Logger) *MistralClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = MistralBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = MistralModel
	}
	if cfg.UploadMode == "" {
		cfg.UploadMode = UploadSignedURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &MistralClient{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:  logger,
	}
}

func (c *MistralClient) Extract(ctx context.Context, doc Document) (Result, error) {
	start := time.Now()
	reqID := common.RequestIDFromContext(ctx)
	res := Result{Method: MethodMistral, Model: c.cfg.Model}

	var documentURL string
	switch c.cfg.UploadMode {
	case UploadInline:
		documentURL = "data:" + constants.MimePDF + ";base64," + base64.StdEncoding.EncodeToString(doc.Data)
	case UploadSignedURL:
		fileID, err := c.upload(ctx, doc)
		if err != nil {
			return res, err
		}
		c.logger.Debug("ocr.mistral.upload", "req_id", reqID, "name", doc.Name, "file_id", fileID, "bytes", len(doc.Data))

		documentURL, err = c.signedURL(ctx, fileID)
		if err != nil {
			return res, err
		}
	default:
		return res, fmt.Errorf("unknown upload mode %q", c.cfg.UploadMode)
	}

	body := ocrRequest{
		Model: c.cfg.Model,
		Document: ocrDocument{
			Type:        "document_url",
			DocumentURL: documentURL,
		},
	}
	var out ocrResponse
	if err := c.doJSON(ctx, http.MethodPost, "/ocr", body, &out); err != nil {
		return res, err
	}
	if len(out.Pages) == 0 {
		return res, ErrNoPages
	}

	pages := make([]string, 0, len(out.Pages))
	for _, p := range out.Pages {
		pages = append(pages, p.Markdown)
	}
	res.Text = JoinPages(pages)
	res.Pages = len(out.Pages)
	if out.Model != "" {
		res.Model = out.Model
	}
	res.Duration = time.Since(start)
	if res.Text == "" {
		res.Warnings = append(res.Warnings, "all pages are blank")
	}

	c.logger.Info("ocr.mistral.ok",
		"req_id", reqID,
		"name", doc.Name,
		"mode", c.cfg.UploadMode,
		"pages", res.Pages,
		"text_len", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (c *MistralClient) upload(ctx context.Context, doc Document) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "ocr"); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	name := doc.Name
	if name == "" {
		name = "document.pdf"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := fw.Write(doc.Data); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	var out fileResponse
	if err := c.do(ctx, http.MethodPost, "/files", mw.FormDataContentType(), &buf, &out); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("upload file: %w: response has no file id", common.ErrUpstream)
	}
	return out.ID, nil
}

func (c *MistralClient) signedURL(ctx context.Context, fileID string) (string, error) {
	var out signedURLResponse
	path := "/files/" + url.PathEscape(fileID) + "/url?expiry=1"
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return "", fmt.Errorf("get signed url: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("get signed url: %w: empty url", common.ErrUpstream)
	}
	return out.URL, nil
}

func (c *MistralClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if err := c.do(ctx, method, path, constants.MimeJSON, bytes.NewReader(b), out); err != nil {
		return fmt.Errorf("ocr request: %w", err)
	}
	return nil
}

func (c *MistralClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", constants.MimeJSON)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("ocr.mistral.http",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: mistral status %d: %s", common.ErrUpstream, resp.StatusCode, apiErrorMessage(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// apiErrorMessage pulls the human message out of the error shapes the API uses.
func apiErrorMessage(body []byte) string {
	var e apiError
	if json.Unmarshal(body, &e) == nil {
		switch {
		case e.Error.Message != "":
			return e.Error.Message
		case e.Message != "":
			return e.Message
		case len(e.Detail) > 0 && e.Detail[0] == '"':
			var s string
			if json.Unmarshal(e.Detail, &s) == nil {
				return s
			}
		case len(e.Detail) > 0:
			return string(e.Detail)
		}
	}
	return truncate(strings.TrimSpace(string(body)), 2<<10)
}

type ocrRequest struct {
	Model              string      `json:"model"`
	Document           ocrDocument `json:"document"`
	IncludeImageBase64 bool        `json:"include_image_base64"`
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type ocrResponse struct {
	Model string    `json:"model"`
	Pages []ocrPage `json:"pages"`
}

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type fileResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
}

type signedURLResponse struct {
	URL string `json:"url"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
}

var _ Extractor = (*MistralClient)(nil)
