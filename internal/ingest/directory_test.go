package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "%PDF-a")
	writeFile(t, filepath.Join(root, "nested", "B.PDF"), "%PDF-b")
	writeFile(t, filepath.Join(root, "notes.txt"), "skip me")
	writeFile(t, filepath.Join(root, ".hidden", "c.pdf"), "%PDF-c")
	writeFile(t, filepath.Join(root, ".d.pdf"), "%PDF-d")

	results, stats, err := ScanDirectory(context.Background(), root, true)
	require.NoError(t, err)

	var paths []string
	for _, r := range results {
		assert.Empty(t, r.Err)
		assert.Len(t, r.HashHex, 64)
		assert.Equal(t, int64(6), r.Size)
		rel, _ := filepath.Rel(root, r.Path)
		paths = append(paths, rel)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"a.pdf", filepath.Join("nested", "B.PDF")}, paths)
	assert.Equal(t, uint32(2), stats.Matched)
	assert.Zero(t, stats.Failed)

	results, stats, err = ScanDirectory(context.Background(), root, false)
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.Equal(t, uint32(4), stats.Matched)
}

func TestScanDirectory_SameContentSameHash(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.pdf"), "%PDF-same")
	writeFile(t, filepath.Join(root, "two.pdf"), "%PDF-same")

	results, _, err := ScanDirectory(context.Background(), root, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].HashHex, results[1].HashHex)
}

func TestScanDirectory_Errors(t *testing.T) {
	_, _, err := ScanDirectory(context.Background(), "  ", true)
	assert.Error(t, err)

	_, _, err = ScanDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), true)
	assert.Error(t, err)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "%PDF-a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = ScanDirectory(ctx, root, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	writeFile(t, path, "%PDF-1.4")

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", doc.Name)
	assert.Equal(t, []byte("%PDF-1.4"), doc.Data)

	_, err = LoadDocument(filepath.Join(dir, "report.docx"))
	assert.Error(t, err)

	_, err = LoadDocument(filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden("/tmp/.git"))
	assert.False(t, IsHidden("."))
	assert.False(t, IsHidden("/tmp/report.pdf"))
	assert.True(t, AllowedExt(".PDF"))
	assert.False(t, AllowedExt("png"))
}
