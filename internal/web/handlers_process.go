package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
	webmw "github.com/JonMunkholm/rosterbatch/internal/web/middleware"
)

// Response headers describing a processed archive.
const (
	headerTotalRows = "X-Total-Rows"
	headerFileCount = "X-File-Count"
)

// ProcessResponse is the JSON body of /api/process/summary.
type ProcessResponse struct {
	RunID      string            `json:"run_id"`
	Total      int               `json:"total"`
	Files      []batch.FileCount `json:"files"`
	Records    int               `json:"records"`
	Duplicates int               `json:"duplicates"`
	Excluded   int               `json:"excluded"`
	Archive    string            `json:"archive,omitempty"`
}

// handleProcess runs an uploaded roster and returns the zip archive.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	result, err := s.process(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	run := result.Run
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.OutputName+".zip"))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Archive)))
	w.Header().Set(webmw.RunIDHeader, run.ID)
	w.Header().Set(headerTotalRows, strconv.Itoa(run.Accepted))
	w.Header().Set(headerFileCount, strconv.Itoa(len(run.Files)))
	w.WriteHeader(http.StatusOK)
	w.Write(result.Archive)
}

// handleProcessSummary runs an uploaded roster and returns only the counts.
// The archive can be fetched later when storage is enabled.
func (s *Server) handleProcessSummary(w http.ResponseWriter, r *http.Request) {
	result, err := s.process(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	run := result.Run
	resp := ProcessResponse{
		RunID:      run.ID,
		Total:      run.Accepted,
		Files:      run.Files,
		Records:    run.Records,
		Duplicates: run.Duplicates,
		Excluded:   run.Excluded,
	}
	if run.ArchiveKey != "" {
		resp.Archive = "/api/runs/" + run.ID + "/archive"
	}
	w.Header().Set(webmw.RunIDHeader, run.ID)
	writeJSON(w, http.StatusOK, resp)
}

// process parses the multipart upload and hands it to the service.
func (s *Server) process(w http.ResponseWriter, r *http.Request) (*batch.RunResult, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) || r.ContentLength > maxSize {
			return nil, fmt.Errorf("%w: limit is %d bytes", errFileTooBig, maxSize)
		}
		return nil, fmt.Errorf("%w: %v", errNoFile, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errNoFile
	}
	defer file.Close()

	return s.service.Process(r.Context(), batch.ProcessRequest{
		FileName:   uploadName(header),
		OutputName: strings.TrimSpace(r.FormValue("output")),
		Strategy:   r.FormValue("strategy"),
		Input:      file,
	})
}

func uploadName(h *multipart.FileHeader) string {
	if h == nil {
		return ""
	}
	return h.Filename
}
