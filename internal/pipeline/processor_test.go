package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/labreport-extractor/constants"
	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
	"github.com/joseph-ayodele/labreport-extractor/internal/llm"
	"github.com/joseph-ayodele/labreport-extractor/internal/ocr"
	"github.com/joseph-ayodele/labreport-extractor/internal/ocr/ocrtest"
	"github.com/joseph-ayodele/labreport-extractor/internal/repository"
)

const goodReply = "Here you go:\n```json\n" + `{
  "report_info": {"lab_name": "LDA 22", "report_number": "2403"},
  "analysis_results": [
    {"parameter": "pH", "result": "6.8", "unit": ""},
    {"parameter": "Lead", "result": "<0.01", "unit": "mg/kg"}
  ],
  "conclusion": "Compliant"
}` + "\n```"

// scriptedCompleter replies with contents in order, repeating the last one.
type scriptedCompleter struct {
	mu       sync.Mutex
	contents []string
	err      error
	calls    int
	last     llm.Request
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = req
	if s.err != nil {
		return llm.Response{}, s.err
	}
	i := s.calls - 1
	if i >= len(s.contents) {
		i = len(s.contents) - 1
	}
	return llm.Response{Content: s.contents[i], Model: "test-model", PromptTokens: 10, CompletionTokens: 5}, nil
}

func (s *scriptedCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func reply(contents ...string) *scriptedCompleter {
	return &scriptedCompleter{contents: contents}
}

func newRepo(t *testing.T) repository.ExtractionRepository {
	t.Helper()
	repo, err := repository.Open(context.Background(), repository.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func pdfDoc(pages int) ocr.Document {
	return ocr.Document{Name: "report.pdf", Data: ocrtest.MinimalPDF(pages)}
}

func TestProcess_Success(t *testing.T) {
	repo := newRepo(t)
	extractor := ocrtest.Text("Laboratory LDA 22\npH 6.8")
	completer := reply(goodReply)
	p := NewProcessor(Config{}, extractor, completer, repo, nil)

	res, err := p.Process(context.Background(), pdfDoc(2))
	require.NoError(t, err)

	require.NotNil(t, res.Record)
	assert.Equal(t, "LDA 22", labreport.Value(res.Record.ReportInfo.LabName))
	require.Len(t, res.Record.AnalysisResults, 2)
	assert.Equal(t, "Lead", labreport.Value(res.Record.AnalysisResults[1].Parameter))
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Cached)
	assert.Equal(t, goodReply, res.RawResponse)
	assert.Equal(t, "test-model", res.Model)
	assert.Len(t, res.ContentHash, 64)
	assert.Equal(t, "Laboratory LDA 22\npH 6.8", completer.last.Text)

	stored, err := repo.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusParsed, stored.Status)
	assert.Equal(t, res.Record, stored.Record)
}

func TestProcess_CachedByContentHash(t *testing.T) {
	repo := newRepo(t)
	extractor := ocrtest.Text("text")
	completer := reply(goodReply)
	p := NewProcessor(Config{}, extractor, completer, repo, nil)
	doc := pdfDoc(1)

	first, err := p.Process(context.Background(), doc)
	require.NoError(t, err)

	second, err := p.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Record, second.Record)
	assert.Equal(t, 1, extractor.Calls())
	assert.Equal(t, 1, completer.Calls())
}

func TestProcess_RejectsBadUploads(t *testing.T) {
	extractor := ocrtest.Text("text")
	completer := reply(goodReply)
	p := NewProcessor(Config{MaxUploadBytes: 1 << 20, MaxPages: 2}, extractor, completer, nil, nil)

	cases := map[string][]byte{
		"empty":     nil,
		"not a pdf": []byte("hello world"),
		"too large": append([]byte("%PDF-1.4\n"), make([]byte, 1<<20)...),
		"too many":  ocrtest.MinimalPDF(3),
		"truncated": []byte("%PDF-1.4\n1 0 obj\n"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Process(context.Background(), ocr.Document{Name: "x.pdf", Data: data})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
	assert.Zero(t, extractor.Calls())
	assert.Zero(t, completer.Calls())
}

func TestProcess_ParseFailureIsRecorded(t *testing.T) {
	repo := newRepo(t)
	p := NewProcessor(Config{}, ocrtest.Text("text"), reply("I could not read this report."), repo, nil)

	res, err := p.Process(context.Background(), pdfDoc(1))
	require.Error(t, err)
	require.NotNil(t, res, "parse failures still return the raw response")

	pe, ok := labreport.AsParseError(err)
	require.True(t, ok)
	assert.Equal(t, labreport.KindNoJSONFound, pe.Kind)
	assert.Equal(t, "I could not read this report.", pe.Raw)
	assert.Nil(t, res.Record)
	assert.Equal(t, "I could not read this report.", res.RawResponse)

	stored, err := repo.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusParseFailed, stored.Status)
	assert.Equal(t, "no_json_found", stored.ErrorKind)
}

func TestProcess_RetriesOnlyParseFailures(t *testing.T) {
	completer := reply("not json", "```json\n{broken\n```", goodReply)
	p := NewProcessor(Config{ParseAttempts: 3}, ocrtest.Text("text"), completer, nil, nil)

	res, err := p.Process(context.Background(), pdfDoc(1))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, completer.Calls())
	assert.Equal(t, int64(30), res.PromptTokens)
	assert.Equal(t, goodReply, res.RawResponse)
}

func TestProcess_RetriesExhausted(t *testing.T) {
	completer := reply("[1, 2]")
	p := NewProcessor(Config{ParseAttempts: 2}, ocrtest.Text("text"), completer, nil, nil)

	res, err := p.Process(context.Background(), pdfDoc(1))
	assert.ErrorIs(t, err, labreport.ErrNotAnObject)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, completer.Calls())
}

func TestProcess_UpstreamErrorsAreNotRetried(t *testing.T) {
	completer := &scriptedCompleter{err: common.WrapError(common.ErrUpstream, "mistral status 503")}
	p := NewProcessor(Config{ParseAttempts: 3}, ocrtest.Text("text"), completer, nil, nil)

	res, err := p.Process(context.Background(), pdfDoc(1))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, common.ErrUpstream)
	_, isParse := labreport.AsParseError(err)
	assert.False(t, isParse)
	assert.Equal(t, 1, completer.Calls())
}

func TestProcess_OCRFailure(t *testing.T) {
	repo := newRepo(t)
	extractor := &ocrtest.Static{Err: ocr.ErrNoPages}
	completer := reply(goodReply)
	p := NewProcessor(Config{}, extractor, completer, repo, nil)

	_, err := p.Process(context.Background(), pdfDoc(1))
	assert.ErrorIs(t, err, ocr.ErrNoPages)
	assert.Zero(t, completer.Calls())

	rows, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, constants.StatusFailed, rows[0].Status)
}

func TestProcess_RepairJSON(t *testing.T) {
	broken := "```json\n{\"report_info\": {\"lab_name\": \"LDA 22\",}, \"analysis_results\": [],}\n```"

	strict := NewProcessor(Config{}, ocrtest.Text("text"), reply(broken), nil, nil)
	_, err := strict.Process(context.Background(), pdfDoc(1))
	assert.ErrorIs(t, err, labreport.ErrInvalidJSONInFence)

	lenient := NewProcessor(Config{RepairJSON: true}, ocrtest.Text("text"), reply(broken), nil, nil)
	res, err := lenient.Process(context.Background(), pdfDoc(1))
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.Equal(t, "LDA 22", labreport.Value(res.Record.ReportInfo.LabName))
	assert.Equal(t, broken, res.RawResponse, "raw response is kept as received")
}

func TestProcess_RepairKeepsStructuralErrors(t *testing.T) {
	p := NewProcessor(Config{RepairJSON: true}, ocrtest.Text("text"), reply(`{"analysis_results": "none"}`), nil, nil)
	_, err := p.Process(context.Background(), pdfDoc(1))
	assert.ErrorIs(t, err, labreport.ErrMalformedResultsArray)
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewProcessor(Config{}, ocrtest.Text("text"), reply(goodReply), nil, nil)

	_, err := p.Process(ctx, pdfDoc(1))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParseOnly(t *testing.T) {
	p := NewProcessor(Config{}, nil, nil, nil, nil)
	rec, err := p.ParseOnly(goodReply)
	require.NoError(t, err)
	assert.Equal(t, "Compliant", labreport.Value(rec.Conclusion))

	_, err = p.ParseOnly("")
	assert.ErrorIs(t, err, labreport.ErrNoJSONFound)
}
