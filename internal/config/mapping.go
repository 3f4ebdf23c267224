package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
)

// MappingFile is the YAML layout of MAPPING_FILE:
//
//	pairs:
//	  - {source: "B:E", dest: "B:E"}
//	  - {source: "F:I", dest: "G:J"}
//	source_order: ["B:E", "F:I"]
//	normalize: ["F"]
//
// source_order may be omitted, in which case the pairs' order is used.
// normalize, when present, overrides BATCH_NORMALIZE_COLUMNS.
type MappingFile struct {
	Pairs       []batch.PairSpec `yaml:"pairs"`
	SourceOrder []string         `yaml:"source_order"`
	Normalize   []string         `yaml:"normalize"`
}

// Mapping is the resolved column mapping and the source columns to normalize.
type Mapping struct {
	Fields    *batch.FieldMapping
	Normalize []int
}

// LoadMapping resolves the mapping for a BatchConfig. Without a mapping
// file the built-in mapping is returned.
func LoadMapping(c BatchConfig) (*Mapping, error) {
	normalize := c.NormalizeColumns

	if c.MappingFile == "" {
		cols, err := resolveColumns(normalize)
		if err != nil {
			return nil, err
		}
		return &Mapping{Fields: batch.DefaultMapping(), Normalize: cols}, nil
	}

	data, err := os.ReadFile(c.MappingFile)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}

	mf, err := ParseMappingFile(data)
	if err != nil {
		return nil, fmt.Errorf("mapping file %s: %w", c.MappingFile, err)
	}

	fields, err := batch.ParseMapping(mf.Pairs, mf.SourceOrder)
	if err != nil {
		return nil, fmt.Errorf("mapping file %s: %w", c.MappingFile, err)
	}
	if mf.Normalize != nil {
		normalize = mf.Normalize
	}

	cols, err := resolveColumns(normalize)
	if err != nil {
		return nil, err
	}
	return &Mapping{Fields: fields, Normalize: cols}, nil
}

// ParseMappingFile decodes a mapping file. Unknown keys are rejected so a
// misspelled section does not silently fall back to defaults.
func ParseMappingFile(data []byte) (*MappingFile, error) {
	var mf MappingFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&mf); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if len(mf.Pairs) == 0 {
		return nil, errors.New("no pairs defined")
	}
	return &mf, nil
}

func resolveColumns(letters []string) ([]int, error) {
	cols := make([]int, 0, len(letters))
	for _, l := range letters {
		n, err := batch.ColumnNumber(l)
		if err != nil {
			return nil, fmt.Errorf("normalize column: %w", err)
		}
		cols = append(cols, n)
	}
	return cols, nil
}
