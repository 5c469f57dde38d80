package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/labreport-extractor/internal/export"
	"github.com/joseph-ayodele/labreport-extractor/internal/ingest"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
)

var (
	batchDir        string
	batchOutDir     string
	batchFormat     string
	batchWorkers    int
	batchSkipHidden bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process every PDF under a directory",
	Long: `Walk --dir, run each PDF through the pipeline with --workers in parallel
and export parsed records into --out-dir. Failures are reported per file and
do not stop the batch; the command exits non-zero if any file failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(batchFormat)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		start := time.Now()

		files, stats, err := ingest.ScanDirectory(ctx, batchDir, batchSkipHidden)
		if err != nil {
			return err
		}
		if stats.Matched == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no PDFs found under %s\n", batchDir)
			return nil
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		outDir := batchOutDir
		if outDir == "" {
			outDir = batchDir
		}

		var parsed, cached, failed atomic.Int32
		failed.Add(int32(stats.Failed))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchWorkers)
		for _, f := range files {
			if f.Err != "" {
				a.logger.Warn("batch.scan.failed", "path", f.Path, "error", f.Err)
				continue
			}
			g.Go(func() error {
				doc, err := ingest.LoadDocument(f.Path)
				if err == nil {
					res, perr := a.proc.Process(gctx, doc)
					err = perr
					if err == nil {
						if res.Cached {
							cached.Add(1)
						}
						var path string
						if path, err = a.writeExport(res, outDir, format); err == nil {
							parsed.Add(1)
							a.logger.Info("batch.file.ok", "path", f.Path, "export", path, "cached", res.Cached)
							return nil
						}
					}
				}
				failed.Add(1)
				attrs := []any{"path", f.Path, "error", err}
				if pe, ok := labreport.AsParseError(err); ok {
					attrs = append(attrs, "kind", pe.Kind.String())
				}
				a.logger.Error("batch.file.failed", attrs...)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d matched=%d parsed=%d cached=%d failed=%d elapsed=%s\n",
			stats.Scanned, stats.Matched, parsed.Load(), cached.Load(), failed.Load(),
			time.Since(start).Round(time.Millisecond))
		if n := failed.Load(); n > 0 {
			return fmt.Errorf("%d file(s) failed", n)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory to scan for PDFs (required)")
	batchCmd.Flags().StringVar(&batchOutDir, "out-dir", "", "directory for exports (default: --dir)")
	batchCmd.Flags().StringVar(&batchFormat, "format", "xlsx", "export format: xlsx, csv or txt")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 2, "documents processed in parallel")
	batchCmd.Flags().BoolVar(&batchSkipHidden, "skip-hidden", true, "skip dot files and directories")
	_ = batchCmd.MarkFlagRequired("dir")
}
