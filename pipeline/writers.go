package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-product-collector/models"
	"github.com/aluiziolira/go-product-collector/record"
)

// CSVWriter appends records to a header-less CSV dataset by reading the
// whole file, adding the new lines and writing it back.
type CSVWriter struct {
	path string
	mu   sync.Mutex
}

// NewCSVWriter returns a writer for path. The file is not touched until Write.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if filename == "" {
		return nil, fmt.Errorf("csv path cannot be empty")
	}
	return &CSVWriter{path: filename}, nil
}

// Write appends records after any existing rows.
func (cw *CSVWriter) Write(records []models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := appendByRewrite(cw.path, record.Lines(records)); err != nil {
		return fmt.Errorf("append csv records: %w", err)
	}
	return nil
}

// Validate ensures the file exists and has content.
func (cw *CSVWriter) Validate() error {
	return validateNonEmpty(cw.path, "csv")
}

// Paths returns the dataset location.
func (cw *CSVWriter) Paths() []string {
	return []string{cw.path}
}

// JSONWriter appends records as JSON Lines using the same strategy as CSVWriter.
type JSONWriter struct {
	path string
	mu   sync.Mutex
}

// NewJSONWriter returns a writer for path.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if filename == "" {
		return nil, fmt.Errorf("json path cannot be empty")
	}
	return &JSONWriter{path: filename}, nil
}

// Write appends one JSON object per record.
func (jw *JSONWriter) Write(records []models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	lines := make([]string, 0, len(records))
	for _, r := range records {
		encoded, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		lines = append(lines, string(encoded))
	}
	if err := appendByRewrite(jw.path, lines); err != nil {
		return fmt.Errorf("append json records: %w", err)
	}
	return nil
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return validateNonEmpty(jw.path, "json")
}

// Paths returns the JSON Lines location.
func (jw *JSONWriter) Paths() []string {
	return []string{jw.path}
}

// appendByRewrite reads path in full, makes sure existing content ends with
// a newline and writes it back followed by lines, one per row. An unreadable
// file is treated as empty.
func appendByRewrite(path string, lines []string) error {
	existing, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("existing output unreadable, starting fresh",
				slog.String("path", path),
				slog.Any("error", err),
			)
		}
		existing = nil
	}

	var buf bytes.Buffer
	buf.Grow(len(existing) + 1 + 256*len(lines))
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if err := ensureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func validateNonEmpty(path, kind string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
