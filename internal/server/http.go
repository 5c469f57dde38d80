package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/export"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
	"github.com/joseph-ayodele/labreport-extractor/internal/pipeline"
	"github.com/joseph-ayodele/labreport-extractor/internal/repository"
)

const (
	headerRequestID = "X-Request-ID"
	formOverhead    = 1 << 20
	maxTextBody     = 8 << 20
)

type Deps struct {
	Processor      *pipeline.Processor
	Repo           repository.ExtractionRepository // nil disables history routes
	Export         *export.Service
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	proc      *pipeline.Processor
	repo      repository.ExtractionRepository
	export    *export.Service
	maxUpload int64
	logger    *slog.Logger
}

func NewHTTPServer(d Deps) *HTTPServer {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exp := d.Export
	if exp == nil {
		exp = export.NewService(d.Repo, logger)
	}
	limit := d.MaxUploadBytes
	if limit <= 0 {
		limit = 25 << 20
	}
	return &HTTPServer{proc: d.Processor, repo: d.Repo, export: exp, maxUpload: limit, logger: logger}
}

// Handler returns the routed handler with request ID and access logging.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/extractions", s.handleUpload)
	mux.HandleFunc("GET /api/extractions", s.handleList)
	mux.HandleFunc("GET /api/extractions/{id}", s.handleGet)
	mux.HandleFunc("GET /api/extractions/{id}/export", s.handleExportStored)
	mux.HandleFunc("POST /api/parse", s.handleParse)
	mux.HandleFunc("POST /api/export", s.handleExport)
	return s.withRequestID(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *HTTPServer) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

func (s *HTTPServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		logger := s.logger.With("req_id", id)
		ctx := common.WithLogger(common.WithRequestID(r.Context(), id), logger)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, RequestID: common.RequestIDFromContext(r.Context())})
}

// writeFailure maps err onto an HTTP status. Parse errors carry the raw
// model text back to the caller.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, ext *ExtractionView) {
	if pe, ok := labreport.AsParseError(err); ok {
		v := parseErrorView(pe)
		v.Extraction = ext
		writeJSON(w, http.StatusUnprocessableEntity, v)
		return
	}
	writeError(w, r, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
