package server

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/labreport-extractor/internal/llm"
	"github.com/joseph-ayodele/labreport-extractor/internal/ocr/ocrtest"
	"github.com/joseph-ayodele/labreport-extractor/internal/pipeline"
	"github.com/joseph-ayodele/labreport-extractor/internal/repository"
)

const goodReply = "```json\n" + `{
  "report_info": {"lab_name": "LDA 22", "report_id": "2403"},
  "analysis_results": [{"parameter": "pH", "result": "6.8"}],
  "conclusion": "Compliant"
}` + "\n```"

type fixedCompleter struct {
	content string
	err     error
	calls   atomic.Int32
}

func (f *fixedCompleter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.content, Model: "test-model"}, nil
}

type fixture struct {
	proc      *pipeline.Processor
	repo      repository.ExtractionRepository
	completer *fixedCompleter
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	repo, err := repository.Open(context.Background(), repository.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	completer := &fixedCompleter{content: reply}
	proc := pipeline.NewProcessor(pipeline.Config{MaxUploadBytes: 1 << 20, MaxPages: 10},
		ocrtest.Text("LDA 22 report"), completer, repo, nil)
	return &fixture{proc: proc, repo: repo, completer: completer}
}
