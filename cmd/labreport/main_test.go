package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestParseCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.txt")
	reply := "Here is the data:\n```json\n{\"report_info\":{\"lab_name\":\"LDA 22\"},\"analysis_results\":[{\"parameter\":\"pH\"}]}\n```"
	require.NoError(t, os.WriteFile(path, []byte(reply), 0o644))

	out, _, err := run(t, "", "parse", path)
	require.NoError(t, err)

	var rec labreport.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "LDA 22", labreport.Value(rec.ReportInfo.LabName))
	require.Len(t, rec.AnalysisResults, 1)
}

func TestParseCommand_StdinFailure(t *testing.T) {
	_, errOut, err := run(t, "```json\n{oops\n```", "parse", "-")
	require.Error(t, err)
	assert.ErrorIs(t, err, labreport.ErrInvalidJSONInFence)
	assert.Contains(t, errOut, "parse failed: invalid_json_in_fence")
	assert.Contains(t, errOut, "--- fenced candidate ---\n{oops")
	assert.Contains(t, errOut, "--- raw model response ---")
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "labreport dev\n"))
}
