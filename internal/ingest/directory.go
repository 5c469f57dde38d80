package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/labreport-extractor/internal/ocr"
)

// FileResult is the per-file scan outcome.
type FileResult struct {
	Path    string
	HashHex string
	Size    int64
	Err     string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Failed  uint32
}

// ScanDirectory walks root, skips hidden entries if requested, and hashes
// every PDF it finds. Per-file failures are reported in the results and never
// stop the walk; a cancelled ctx does.
func ScanDirectory(ctx context.Context, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		sum, size, err := hashFile(path)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, FileResult{Path: path, HashHex: sum, Size: size})
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// LoadDocument reads a PDF from disk.
func LoadDocument(path string) (ocr.Document, error) {
	if !AllowedExt(filepath.Ext(path)) {
		return ocr.Document{}, fmt.Errorf("unsupported or missing extension: %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ocr.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return ocr.Document{Name: filepath.Base(path), Data: data}, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
