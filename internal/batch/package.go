package batch

// package.go collects finalized output files into one zip archive.
//
// Entries are Deflate-compressed with a fixed timestamp so that identical
// input produces byte-identical archives.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// ManifestName is the archive entry holding the run summary when enabled.
const ManifestName = "summary.json"

// archiveTime is stamped on every entry.
var archiveTime = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// OutputFile is a finalized, serialized output workbook.
type OutputFile struct {
	Name  string // entry name including extension
	Data  []byte
	Count int // accepted records written to the file
}

// FileCount is the per-file entry of a RunSummary.
type FileCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RunSummary lists each output file with its accepted-record count.
type RunSummary struct {
	Files []FileCount `json:"files"`
	Total int         `json:"total"`
}

// Counts returns the summary as a name -> count map.
func (s RunSummary) Counts() map[string]int {
	m := make(map[string]int, len(s.Files))
	for _, f := range s.Files {
		m[f.Name] = f.Count
	}
	return m
}

// PackageOptions controls archive contents.
type PackageOptions struct {
	// Manifest adds a summary.json entry after the output files.
	Manifest bool
	// Level is the flate compression level; 0 selects flate.DefaultCompression.
	Level int
}

// Packager writes output files into a zip archive as they are finalized.
type Packager struct {
	opts    PackageOptions
	buf     bytes.Buffer
	zw      *zip.Writer
	names   map[string]bool
	summary RunSummary
	done    bool
}

// NewPackager returns an empty Packager.
func NewPackager(opts PackageOptions) *Packager {
	p := &Packager{
		opts:    opts,
		names:   make(map[string]bool),
		summary: RunSummary{Files: []FileCount{}},
	}
	level := opts.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	p.zw = zip.NewWriter(&p.buf)
	p.zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})
	return p
}

// Add appends f to the archive. Files without records are rejected.
func (p *Packager) Add(f OutputFile) error {
	if p.done {
		return fmt.Errorf("package %s: packager already finished", f.Name)
	}
	if f.Count <= 0 {
		return fmt.Errorf("package %s: %w", f.Name, ErrEmptyFile)
	}
	if p.names[f.Name] || f.Name == ManifestName {
		return fmt.Errorf("package %s: duplicate entry name", f.Name)
	}

	if err := p.writeEntry(f.Name, f.Data); err != nil {
		return err
	}

	p.names[f.Name] = true
	p.summary.Files = append(p.summary.Files, FileCount{Name: f.Name, Count: f.Count})
	p.summary.Total += f.Count
	return nil
}

// Finish closes the archive and returns its bytes with the run summary.
func (p *Packager) Finish() ([]byte, RunSummary, error) {
	if p.done {
		return nil, RunSummary{}, fmt.Errorf("package: packager already finished")
	}
	p.done = true

	if p.opts.Manifest {
		data, err := json.MarshalIndent(p.summary, "", "  ")
		if err != nil {
			return nil, RunSummary{}, fmt.Errorf("package manifest: %w", err)
		}
		if err := p.writeEntry(ManifestName, data); err != nil {
			return nil, RunSummary{}, err
		}
	}

	if err := p.zw.Close(); err != nil {
		return nil, RunSummary{}, fmt.Errorf("package: close archive: %w", err)
	}
	return p.buf.Bytes(), p.summary, nil
}

func (p *Packager) writeEntry(name string, data []byte) error {
	w, err := p.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: archiveTime,
	})
	if err != nil {
		return fmt.Errorf("package %s: create entry: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("package %s: write entry: %w", name, err)
	}
	return nil
}

// Package archives files in order and returns the archive with its summary.
func Package(files []OutputFile, opts PackageOptions) ([]byte, RunSummary, error) {
	p := NewPackager(opts)
	for _, f := range files {
		if err := p.Add(f); err != nil {
			return nil, RunSummary{}, err
		}
	}
	return p.Finish()
}
