package server

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/export"
	"github.com/joseph-ayodele/labreport-extractor/internal/ingest"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
	"github.com/joseph-ayodele/labreport-extractor/internal/ocr"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: "disabled"}
	if s.repo != nil {
		resp.Store = "ok"
		if err := s.repo.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Store = "unhealthy"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpload runs the pipeline on the multipart "file" field.
func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := common.LoggerFromContext(r.Context(), s.logger)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+formOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, r, status, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "missing multipart field \"file\"")
		return
	}
	defer func() { _ = file.Close() }()

	if !ingest.AllowedExt(filepath.Ext(hdr.Filename)) {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", hdr.Filename))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, statusFor(err), fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	withOCR := r.URL.Query().Get("include") == "ocr_text"
	res, err := s.proc.Process(r.Context(), ocr.Document{Name: hdr.Filename, Data: data})
	if err != nil {
		log.Warn("http.extract.failed", "file", hdr.Filename, "error", err)
		var view *ExtractionView
		if res != nil {
			view = resultView(res, withOCR)
		}
		writeFailure(w, r, err, view)
		return
	}
	writeJSON(w, http.StatusOK, resultView(res, withOCR))
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, r, http.StatusNotFound, "extraction history is disabled")
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	rows, err := s.repo.List(r.Context(), limit)
	if err != nil {
		writeFailure(w, r, err, nil)
		return
	}
	out := make([]*ExtractionView, 0, len(rows))
	for i := range rows {
		v := extractionView(&rows[i], false)
		v.RawResponse = ""
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"extractions": out})
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, r, http.StatusNotFound, "extraction history is disabled")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "id must be a UUID")
		return
	}
	e, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, extractionView(e, r.URL.Query().Get("include") == "ocr_text"))
}

func (s *HTTPServer) handleExportStored(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "id must be a UUID")
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeFailure(w, r, err, nil)
		return
	}
	data, name, err := s.export.RenderExtraction(r.Context(), id, format)
	if err != nil {
		writeFailure(w, r, err, nil)
		return
	}
	writeFile(w, format, name, data)
}

// handleParse runs the parser alone on a raw model response body.
func (s *HTTPServer) handleParse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTextBody))
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	rec, err := s.proc.ParseOnly(string(body))
	if err != nil {
		writeFailure(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Record: rec})
}

// handleExport renders a record JSON body.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeFailure(w, r, err, nil)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTextBody))
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	rec, err := labreport.Parse(string(body))
	if err != nil {
		writeFailure(w, r, err, nil)
		return
	}
	data, err := s.export.Render(rec, format)
	if err != nil {
		writeFailure(w, r, err, nil)
		return
	}
	writeFile(w, format, export.FileName(r.URL.Query().Get("name"), format), data)
}

func writeFile(w http.ResponseWriter, format export.Format, name string, data []byte) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
