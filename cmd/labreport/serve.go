package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/labreport-extractor/internal/server"
)

var (
	serveHTTPAddr string
	serveGRPCAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long: `Start the HTTP JSON API and the gRPC ExtractionService.

HTTP routes:
  POST /api/extractions                  multipart "file" upload, runs the pipeline
  GET  /api/extractions                  recent extractions
  GET  /api/extractions/{id}             one extraction (?include=ocr_text)
  GET  /api/extractions/{id}/export      ?format=xlsx|csv|txt
  POST /api/parse                        parse a raw model response body
  POST /api/export                       render a record JSON body (?format=)
  GET  /healthz

Both servers stop on Ctrl+C or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		httpAddr := a.cfg.Server.HTTPAddr
		if cmd.Flags().Changed("http-addr") {
			httpAddr = serveHTTPAddr
		}
		grpcAddr := a.cfg.Server.GRPCAddr
		if cmd.Flags().Changed("grpc-addr") {
			grpcAddr = serveGRPCAddr
		}

		httpSrv := server.NewHTTPServer(server.Deps{
			Processor:      a.proc,
			Repo:           a.repo,
			Export:         a.export,
			MaxUploadBytes: a.cfg.Pipeline.MaxUploadBytes(),
			Logger:         a.logger,
		})
		gs, hs := server.NewGRPCServer(server.NewExtractionGRPC(a.proc, a.logger), a.logger)

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error { return httpSrv.ListenAndServe(ctx, httpAddr) })
		if grpcAddr != "" {
			g.Go(func() error { return server.ServeGRPC(ctx, gs, hs, grpcAddr, a.logger) })
		}
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http-addr", ":8080", "HTTP listen address, overrides HTTP_ADDR")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc-addr", ":9090", "gRPC listen address, overrides GRPC_ADDR (empty disables)")
}
