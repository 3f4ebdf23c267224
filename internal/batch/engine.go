package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/JonMunkholm/rosterbatch/internal/logging"
)

// DefaultStartRow is the first template row written in every output file.
const DefaultStartRow = 10

// DefaultExtension is appended to every output file name.
const DefaultExtension = ".xlsx"

// Config is the immutable configuration of an Engine.
type Config struct {
	Mapping      *FieldMapping
	UniqueColumn int   // 1-based source column holding the identifier
	Normalize    []int // source columns passed through Normalize
	StartRow     int   // first template row to write; 0 selects DefaultStartRow
	Partitioner  Partitioner
	// SkipBlankKeys drops records whose identifier is blank instead of
	// treating "" as an ordinary key.
	SkipBlankKeys bool
	Extension     string // "" selects DefaultExtension
	Package       PackageOptions
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []string
	if c.Mapping == nil {
		errs = append(errs, "mapping is required")
	}
	if c.UniqueColumn < 1 || c.UniqueColumn > MaxColumn {
		errs = append(errs, fmt.Sprintf("unique column %d out of range", c.UniqueColumn))
	}
	if c.Partitioner == nil {
		errs = append(errs, "partitioner is required")
	}
	if c.StartRow < 0 {
		errs = append(errs, "start row must be non-negative")
	}
	if c.Mapping != nil {
		for _, col := range c.Normalize {
			if !c.Mapping.HasSource(col) {
				errs = append(errs, fmt.Sprintf("normalize column %s is not a mapped source column", ColumnName(col)))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid engine config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Result is the outcome of a completed run. It is only produced when every
// output file was finalized.
type Result struct {
	Archive    []byte
	Summary    RunSummary
	Records    int // input records seen
	Duplicates int // dropped as repeats within their scope
	Excluded   int // dropped for a blank identifier or group value
}

// Engine runs records through deduplication, extraction and template
// writing, with file boundaries chosen by the configured Partitioner.
type Engine struct {
	cfg       Config
	template  TemplateSource
	extractor *Extractor
	writer    *TemplateWriter
}

// New creates an Engine. The template is opened once per output file.
func New(cfg Config, template TemplateSource) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if template == nil {
		return nil, errors.New("template source is required")
	}
	if cfg.StartRow == 0 {
		cfg.StartRow = DefaultStartRow
	}
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	cfg.Normalize = append([]int(nil), cfg.Normalize...)

	return &Engine{
		cfg:       cfg,
		template:  template,
		extractor: NewExtractor(cfg.Mapping, cfg.Normalize),
		writer:    NewTemplateWriter(cfg.Mapping),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// openFile is the output file currently being written.
type openFile struct {
	name  string
	doc   Document
	row   int
	count int
}

// run holds the state of one Run call.
type run struct {
	e       *Engine
	pack    *Packager
	names   map[string]int
	seq     int
	current *openFile
	result  Result
	log     *slog.Logger
}

// Run processes records and returns the packaged result. Any error aborts
// the run; no partial archive is returned.
func (e *Engine) Run(ctx context.Context, records []Record) (*Result, error) {
	r := &run{
		e:     e,
		pack:  NewPackager(e.cfg.Package),
		names: make(map[string]int),
		log:   logging.FromContext(ctx).With("strategy", e.cfg.Partitioner.Name()),
	}
	r.result.Records = len(records)

	if err := r.process(ctx, records); err != nil {
		r.discard()
		return nil, err
	}

	archive, summary, err := r.pack.Finish()
	if err != nil {
		return nil, err
	}
	r.result.Archive = archive
	r.result.Summary = summary

	r.log.Info("run complete",
		"records", r.result.Records,
		"accepted", summary.Total,
		"files", len(summary.Files),
		"duplicates", r.result.Duplicates,
		"excluded", r.result.Excluded,
	)
	return &r.result, nil
}

func (r *run) process(ctx context.Context, records []Record) error {
	part := r.e.cfg.Partitioner
	scopes := part.Scopes(records)

	grouped := 0
	for _, s := range scopes {
		grouped += len(s.Records)
	}
	r.result.Excluded += len(records) - grouped

	dedup := NewDeduplicator()
	for _, scope := range scopes {
		dedup.Reset()

		for _, rec := range scope.Records {
			if err := ctx.Err(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("run timed out: %w", err)
				}
				return fmt.Errorf("run cancelled: %w", err)
			}

			key := rec.Key(r.e.cfg.UniqueColumn)
			if key == "" && r.e.cfg.SkipBlankKeys {
				r.result.Excluded++
				continue
			}
			if !dedup.Accept(key) {
				r.result.Duplicates++
				continue
			}

			if r.current == nil {
				if err := r.open(scope); err != nil {
					return err
				}
			}

			values := r.e.extractor.Extract(rec)
			if err := r.e.writer.Write(r.current.doc, r.current.row, values); err != nil {
				return fmt.Errorf("line %d: %w", rec.Line, err)
			}
			r.current.row++
			r.current.count++

			if part.Rotate(r.current.count) {
				if err := r.finalize(); err != nil {
					return err
				}
			}
		}

		// A group's file never outlives its group. FixedSize has a single
		// scope, so this also flushes the trailing partial file.
		if r.current != nil {
			if err := r.finalize(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) open(scope Scope) error {
	r.seq++
	doc, err := r.e.template.Open()
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	r.current = &openFile{
		name: r.uniqueName(r.e.cfg.Partitioner.FileName(scope, r.seq)),
		doc:  doc,
		row:  r.e.cfg.StartRow,
	}
	return nil
}

// uniqueName appends a numeric suffix when two groups sanitize to the same name.
func (r *run) uniqueName(base string) string {
	name := base
	for n := 2; r.names[name] > 0; n++ {
		name = base + "_" + strconv.Itoa(n)
	}
	r.names[name]++
	return name + r.e.cfg.Extension
}

func (r *run) finalize() error {
	f := r.current
	r.current = nil

	data, err := f.doc.Bytes()
	closeErr := f.doc.Close()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", f.name, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", f.name, closeErr)
	}

	if err := r.pack.Add(OutputFile{Name: f.name, Data: data, Count: f.count}); err != nil {
		return err
	}
	r.log.Debug("output file finalized", "file", f.name, "records", f.count, "bytes", len(data))
	return nil
}

// discard releases the open document after a failed run.
func (r *run) discard() {
	if r.current == nil {
		return
	}
	if err := r.current.doc.Close(); err != nil {
		r.log.Warn("close document after failed run", "file", r.current.name, "error", err)
	}
	r.current = nil
}
