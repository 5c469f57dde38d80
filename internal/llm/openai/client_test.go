package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/llm"
)

func TestClient_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini-2024-07-18",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"conclusion\":\"Conforme\"}"}}],
			"usage":{"prompt_tokens":900,"completion_tokens":40,"total_tokens":940}
		}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", Temperature: 0.2}, nil)
	resp, err := c.Complete(context.Background(), llm.Request{Text: "Rapport"})
	require.NoError(t, err)

	assert.Equal(t, `{"conclusion":"Conforme"}`, resp.Content)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.Model)
	assert.Equal(t, int64(900), resp.PromptTokens)
	assert.Equal(t, int64(40), resp.CompletionTokens)

	assert.Equal(t, DefaultModel, got["model"])
	assert.InDelta(t, 0.2, got["temperature"], 1e-9)
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestClient_APIErrorIsUpstream(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"server exploded","type":"server_error"}}`)
	}))
	defer srv.Close()

	_, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/"}, nil).Complete(context.Background(), llm.Request{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstream)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, 1, calls, "sdk retries are disabled")
}
