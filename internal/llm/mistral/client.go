// Package mistral calls the Mistral chat completions API over plain HTTP.
package mistral

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/llm"
)

const (
	DefaultBaseURL = "https://api.mistral.ai/v1"
	DefaultModel   = "mistral-large-latest"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
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
	return &Client{cfg: cfg, http: hc, logger: logger}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements llm.Completer.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()
	reqID := common.RequestIDFromContext(ctx)

	c.logger.Info("llm.complete.start",
		"req_id", reqID,
		"provider", "mistral",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.Text),
		"name", req.Name,
	)

	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: llm.BuildSystemPrompt()},
			{Role: "user", Content: llm.BuildUserPrompt(req.Text)},
		},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.complete.http_error",
			"req_id", reqID, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if len(raw) > 0 {
			return llm.Response{}, fmt.Errorf("mistral chat: %w: %s", err, strings.TrimSpace(string(raw)))
		}
		return llm.Response{}, fmt.Errorf("mistral chat: %w", err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.complete.decode_error", "req_id", reqID, "error", err, "raw_bytes", len(raw))
		return llm.Response{}, fmt.Errorf("decode mistral response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.complete.no_choices", "req_id", reqID, "raw", string(raw))
		return llm.Response{}, llm.ErrEmptyResponse
	}

	out := llm.Response{
		Content:          cc.Choices[0].Message.Content,
		Model:            cc.Model,
		PromptTokens:     cc.Usage.PromptTokens,
		CompletionTokens: cc.Usage.CompletionTokens,
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

var _ llm.Completer = (*Client)(nil)
