package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
	"github.com/JonMunkholm/rosterbatch/internal/logging"
	webmw "github.com/JonMunkholm/rosterbatch/internal/web/middleware"
	"github.com/JonMunkholm/rosterbatch/internal/web/templates"
)

// indexRunLimit bounds the run list shown on the upload page.
const indexRunLimit = 10

// MappingResponse describes the active column mapping.
type MappingResponse struct {
	Pairs           []batch.PairSpec `json:"pairs"`
	SourceOrder     []string         `json:"source_order"`
	Width           int              `json:"width"`
	UniqueColumn    string           `json:"unique_column"`
	GroupColumn     string           `json:"group_column,omitempty"`
	Normalize       []string         `json:"normalize"`
	StartRow        int              `json:"start_row"`
	ChunkSize       int              `json:"chunk_size"`
	Strategies      []string         `json:"strategies"`
	DefaultStrategy string           `json:"default_strategy"`
}

// handleIndex renders the upload page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.Runs(r.Context(), indexRunLimit)
	if err != nil {
		// The page is still usable without history.
		logging.FromContext(r.Context()).Warn("list runs for index", "error", err)
		runs = nil
	}

	pairs, _ := s.service.Mapping().Specs()
	data := templates.IndexData{
		Strategies:      s.service.Strategies(),
		DefaultStrategy: s.service.DefaultStrategy(),
		Pairs:           pairs,
		ChunkSize:       s.cfg.Batch.ChunkSize,
		UniqueColumn:    batch.ColumnName(s.service.EngineConfig().UniqueColumn),
		GroupColumn:     s.cfg.Batch.GroupColumn,
		StorageEnabled:  s.service.StorageEnabled(),
		Runs:            runs,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Index(data).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render index", "error", err)
	}
}

// handleHealth reports liveness and run capacity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.service.LimiterStatus()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_runs": status.Active,
		"max_runs":    status.MaxConcurrent,
		"storage":     s.service.StorageEnabled(),
	})
}

// handleListRuns returns recent runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	runs, err := s.service.Runs(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleGetRun returns one run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunArchive streams a stored archive.
func (s *Server) handleRunArchive(w http.ResponseWriter, r *http.Request) {
	data, run, err := s.service.Archive(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.OutputName+".zip"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set(webmw.RunIDHeader, run.ID)
	w.Header().Set(headerTotalRows, strconv.Itoa(run.Accepted))
	w.Header().Set(headerFileCount, strconv.Itoa(len(run.Files)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleMapping returns the active mapping configuration.
func (s *Server) handleMapping(w http.ResponseWriter, r *http.Request) {
	ec := s.service.EngineConfig()
	pairs, order := ec.Mapping.Specs()

	normalize := make([]string, len(ec.Normalize))
	for i, col := range ec.Normalize {
		normalize[i] = batch.ColumnName(col)
	}
	writeJSON(w, http.StatusOK, MappingResponse{
		Pairs:           pairs,
		SourceOrder:     order,
		Width:           ec.Mapping.Width(),
		UniqueColumn:    batch.ColumnName(ec.UniqueColumn),
		GroupColumn:     s.cfg.Batch.GroupColumn,
		Normalize:       normalize,
		StartRow:        ec.StartRow,
		ChunkSize:       s.cfg.Batch.ChunkSize,
		Strategies:      s.service.Strategies(),
		DefaultStrategy: s.service.DefaultStrategy(),
	})
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
