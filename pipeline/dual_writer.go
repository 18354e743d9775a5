// Package pipeline collects records for a list of queries and appends them
// to the dataset files.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-product-collector/models"
)

// DualWriter outputs to both CSV and JSON Lines.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
}

// NewDualWriter creates a writer for both formats.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// JSONPathFor derives the JSON Lines path that sits next to path.
func JSONPathFor(path string) string {
	ext := filepath.Ext(path)
	if ext == ".jsonl" {
		return path
	}
	return strings.TrimSuffix(path, ext) + ".jsonl"
}

// Write writes records to the CSV file, then the JSON file.
func (dw *DualWriter) Write(records []models.Record) error {
	if err := dw.csvWriter.Write(records); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}

	if err := dw.jsonWriter.Write(records); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}

	return nil
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error

	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("CSV validation failed: %w", err))
	}

	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSON validation failed: %w", err))
	}

	return errors.Join(errs...)
}

// Paths returns both file locations.
func (dw *DualWriter) Paths() []string {
	return append(dw.csvWriter.Paths(), dw.jsonWriter.Paths()...)
}
