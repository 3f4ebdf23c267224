package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/rosterbatch/internal/logging"
)

// DefaultRunTimeout bounds a single run.
const DefaultRunTimeout = 10 * time.Minute

var (
	// ErrUnknownStrategy is returned for a strategy the service was not built with.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrRunNotFound is returned when a run ID has no history entry.
	ErrRunNotFound = errors.New("run not found")
	// ErrStorageDisabled is returned when archives are requested but not stored.
	ErrStorageDisabled = errors.New("archive storage disabled")
	// ErrArchiveNotFound is returned when a stored archive is missing.
	ErrArchiveNotFound = errors.New("archive not found")
	// ErrUnsupportedFile is returned for uploads that are not xlsx workbooks.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// RecordReader parses an uploaded workbook into records, header excluded.
type RecordReader interface {
	ReadRecords(ctx context.Context, r io.Reader) ([]Record, error)
}

// ArchiveStore persists finished archives.
type ArchiveStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// RunRecorder keeps the history of completed runs.
type RunRecorder interface {
	Record(ctx context.Context, run RunRecord) error
	List(ctx context.Context, limit int) ([]RunRecord, error)
	Get(ctx context.Context, id string) (RunRecord, error)
}

// RunRecord is the persisted summary of one completed run.
type RunRecord struct {
	ID          string        `json:"id"`
	FileName    string        `json:"file_name"`
	OutputName  string        `json:"output_name"`
	Strategy    string        `json:"strategy"`
	Records     int           `json:"records"`
	Accepted    int           `json:"accepted"`
	Duplicates  int           `json:"duplicates"`
	Excluded    int           `json:"excluded"`
	Files       []FileCount   `json:"files"`
	ArchiveKey  string        `json:"archive_key,omitempty"`
	ArchiveSize int           `json:"archive_size"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ProcessRequest is one uploaded workbook to process.
type ProcessRequest struct {
	FileName   string
	OutputName string // archive name without .zip; defaults to "output"
	Strategy   string // "" selects the service default
	Input      io.Reader
}

// RunResult is returned by Service.Process.
type RunResult struct {
	Run     RunRecord
	Archive []byte
}

// ServiceOptions wires the collaborators of a Service.
type ServiceOptions struct {
	Reader   RecordReader
	Limiter  *RunLimiter  // nil selects a default limiter
	Store    ArchiveStore // nil disables archive storage
	Recorder RunRecorder  // nil disables run history
	Timeout  time.Duration
}

// Service is the entry point for processing uploads. It is safe for
// concurrent use; each run has its own state.
type Service struct {
	engines         map[string]*Engine
	defaultStrategy string
	reader          RecordReader
	limiter         *RunLimiter
	store           ArchiveStore
	recorder        RunRecorder
	timeout         time.Duration
}

// NewService creates a Service over engines keyed by strategy name.
func NewService(engines map[string]*Engine, defaultStrategy string, opts ServiceOptions) (*Service, error) {
	if len(engines) == 0 {
		return nil, errors.New("at least one engine is required")
	}
	if _, ok := engines[defaultStrategy]; !ok {
		return nil, fmt.Errorf("%w: default %q has no engine", ErrUnknownStrategy, defaultStrategy)
	}
	if opts.Reader == nil {
		return nil, errors.New("record reader is required")
	}
	if opts.Limiter == nil {
		opts.Limiter = NewRunLimiter(DefaultMaxConcurrentRuns, DefaultMaxWaitTime)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRunTimeout
	}

	return &Service{
		engines:         engines,
		defaultStrategy: defaultStrategy,
		reader:          opts.Reader,
		limiter:         opts.Limiter,
		store:           opts.Store,
		recorder:        opts.Recorder,
		timeout:         opts.Timeout,
	}, nil
}

// Strategies returns the available strategy names, sorted.
func (s *Service) Strategies() []string {
	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultStrategy returns the strategy used when a request names none.
func (s *Service) DefaultStrategy() string {
	return s.defaultStrategy
}

// Mapping returns the field mapping shared by all engines.
func (s *Service) Mapping() *FieldMapping {
	return s.EngineConfig().Mapping
}

// EngineConfig returns the configuration of the default engine.
func (s *Service) EngineConfig() Config {
	return s.engines[s.defaultStrategy].Config()
}

// StorageEnabled reports whether archives are persisted.
func (s *Service) StorageEnabled() bool {
	return s.store != nil
}

// Process runs one uploaded workbook to completion. On error nothing is
// stored or recorded.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*RunResult, error) {
	strategy := strings.ToLower(strings.TrimSpace(req.Strategy))
	if strategy == "" {
		strategy = s.defaultStrategy
	}
	engine, ok := s.engines[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, req.Strategy)
	}
	if err := checkFileType(req.FileName); err != nil {
		return nil, err
	}

	outputName := SanitizeFileName(strings.TrimSuffix(req.OutputName, ".zip"))
	if strings.TrimSpace(req.OutputName) == "" {
		outputName = "output"
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithFields(ctx, "file", req.FileName, "strategy", strategy)
	logger.Info("run started")
	start := time.Now()

	records, err := s.reader.ReadRecords(ctx, req.Input)
	if err != nil {
		logger.Warn("run failed", "phase", "read", "error", err)
		return nil, err
	}

	res, err := engine.Run(ctx, records)
	if err != nil {
		logger.Warn("run failed", "phase", "process", "error", err)
		return nil, err
	}

	run := RunRecord{
		ID:          runID,
		FileName:    req.FileName,
		OutputName:  outputName,
		Strategy:    strategy,
		Records:     res.Records,
		Accepted:    res.Summary.Total,
		Duplicates:  res.Duplicates,
		Excluded:    res.Excluded,
		Files:       res.Summary.Files,
		ArchiveSize: len(res.Archive),
		Duration:    time.Since(start),
		CreatedAt:   start.UTC(),
	}

	// Storage and history are best effort: the archive is already complete
	// and goes back to the caller either way.
	if s.store != nil {
		key := ArchiveKey(runID, outputName)
		if err := s.store.Put(ctx, key, res.Archive); err != nil {
			logger.Warn("archive not stored", "key", key, "error", err)
		} else {
			run.ArchiveKey = key
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, run); err != nil {
			logger.Warn("run not recorded", "error", err)
		}
	}

	logger.Info("run finished",
		"accepted", run.Accepted,
		"files", len(run.Files),
		"duration_ms", run.Duration.Milliseconds(),
	)
	return &RunResult{Run: run, Archive: res.Archive}, nil
}

// Runs returns up to limit recent runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.recorder == nil {
		return []RunRecord{}, nil
	}
	return s.recorder.List(ctx, limit)
}

// Run returns one run by ID.
func (s *Service) Run(ctx context.Context, id string) (RunRecord, error) {
	if s.recorder == nil {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return s.recorder.Get(ctx, id)
}

// Archive returns the stored archive of a run.
func (s *Service) Archive(ctx context.Context, id string) ([]byte, RunRecord, error) {
	if s.store == nil {
		return nil, RunRecord{}, ErrStorageDisabled
	}
	run, err := s.Run(ctx, id)
	if err != nil {
		return nil, RunRecord{}, err
	}
	if run.ArchiveKey == "" {
		return nil, RunRecord{}, fmt.Errorf("%w: run %s", ErrArchiveNotFound, id)
	}
	data, err := s.store.Get(ctx, run.ArchiveKey)
	if err != nil {
		return nil, RunRecord{}, err
	}
	return data, run, nil
}

// LimiterStatus returns the run limiter state.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until active runs complete or ctx is done.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ArchiveKey is the storage key of a run's archive.
func ArchiveKey(runID, outputName string) string {
	return "runs/" + runID + "/" + outputName + ".zip"
}

func checkFileType(name string) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFile, name)
	}
}
