package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/labreport-extractor/internal/async"
	"github.com/joseph-ayodele/labreport-extractor/internal/export"
	"github.com/joseph-ayodele/labreport-extractor/internal/ingest"
)

var (
	watchDir      string
	watchOutDir   string
	watchFormat   string
	watchWorkers  int
	watchDebounce time.Duration
	watchInitial  bool
	watchTimeout  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process PDFs as they appear in a directory",
	Long: `Watch --dir recursively and run every new or changed PDF through the
pipeline on a worker queue, exporting parsed records into --out-dir. Runs
until Ctrl+C or SIGTERM; queued documents are finished before exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(watchFormat)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		outDir := watchOutDir
		if outDir == "" {
			outDir = watchDir
		}

		q := async.NewWorkerQueue(func(ctx context.Context, job async.Job) error {
			doc, err := ingest.LoadDocument(job.Path)
			if err != nil {
				return err
			}
			res, err := a.proc.Process(ctx, doc)
			if err != nil {
				return err
			}
			path, err := a.writeExport(res, outDir, format)
			if err != nil {
				return err
			}
			a.logger.Info("watch.export.ok", "path", job.Path, "export", path, "cached", res.Cached)
			return nil
		}, a.logger, async.WithWorkers(watchWorkers), async.WithProcessTimeout(watchTimeout))

		events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       []string{watchDir},
			InitialScan: watchInitial,
			SkipHidden:  true,
			Debounce:    watchDebounce,
			Logger:      a.logger,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "watching %s (Ctrl+C to stop)\n", watchDir)

		for events != nil || errs != nil {
			select {
			case path, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if err := q.Enqueue(ctx, async.Job{Path: path}); err != nil {
					a.logger.Warn("watch.enqueue.failed", "path", path, "error", err)
				}
			case _, ok := <-errs:
				if !ok {
					errs = nil
				}
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), watchTimeout)
		defer cancel()
		q.Shutdown(shutdownCtx)
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "directory to watch (required)")
	watchCmd.Flags().StringVar(&watchOutDir, "out-dir", "", "directory for exports (default: --dir)")
	watchCmd.Flags().StringVar(&watchFormat, "format", "xlsx", "export format: xlsx, csv or txt")
	watchCmd.Flags().IntVar(&watchWorkers, "workers", 2, "documents processed in parallel")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period before a changed file is processed")
	watchCmd.Flags().BoolVar(&watchInitial, "initial-scan", false, "also process PDFs already in --dir")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 5*time.Minute, "per-document processing timeout")
	_ = watchCmd.MarkFlagRequired("dir")
}
