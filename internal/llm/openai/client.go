// Package openai calls any OpenAI-compatible chat completions endpoint through
// the official SDK.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/llm"
)

const DefaultModel = "gpt-4o-mini"

// Config for the OpenAI client.
type Config struct {
	APIKey      string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string        // optional, for compatible gateways and tests
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float64       // 0..2
	Timeout     time.Duration // http client timeout
	HTTPClient  *http.Client
}

type Client struct {
	cfg    Config
	client openai.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	// SDK retries stay off; re-invocation is decided by the pipeline.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		cfg:    cfg,
		client: openai.NewClient(opts...),
		logger: logger,
	}
}

// Complete implements llm.Completer using chat/completions.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()
	reqID := common.RequestIDFromContext(ctx)

	c.logger.Info("llm.complete.start",
		"req_id", reqID,
		"provider", "openai",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.Text),
		"name", req.Name,
	)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(llm.BuildSystemPrompt()),
			openai.UserMessage(llm.BuildUserPrompt(req.Text)),
		},
		Temperature: openai.Float(c.cfg.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = mapError(err)
		c.logger.Error("llm.complete.http_error",
			"req_id", reqID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, err
	}
	if len(resp.Choices) == 0 {
		c.logger.Error("llm.complete.no_choices", "req_id", reqID, "id", resp.ID)
		return llm.Response{}, llm.ErrEmptyResponse
	}

	out := llm.Response{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Duration:         time.Since(start),
	}
	if out.Model == "" {
		out.Model = c.cfg.Model
	}

	c.logger.Info("llm.complete.ok",
		"req_id", reqID,
		"model", out.Model,
		"content_len", len(out.Content),
		"prompt_tokens", out.PromptTokens,
		"completion_tokens", out.CompletionTokens,
		"elapsed_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("%w: openai status %d: %s", common.ErrUpstream, apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%w: openai status %d", common.ErrUpstream, apiErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrUpstream, err)
}

var _ llm.Completer = (*Client)(nil)
