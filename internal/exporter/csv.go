package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tabtweak/internal/config"
	"tabtweak/pkg/contracts/domain"
)

// utf8BOM helps Excel recognize UTF-8
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter provides CSV export functionality
type CSVWriter struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewCSVWriter creates a CSV writer resolving relative paths under the
// reports directory. A nil paths keeps relative paths as given.
func NewCSVWriter(paths *config.Paths, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{paths: paths, logger: logger.With(slog.String("component", "csv_writer"))}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	BOMPrefix bool
	// Delimiter defaults to a comma
	Delimiter rune
}

// WriteTable writes the header and every row of t. Missing cells are empty.
func (w *CSVWriter) WriteTable(filePath string, t *domain.Table, opts WriteOptions) (string, error) {
	fullPath := w.resolvePath(filePath)
	w.logger.Info("writing CSV file",
		slog.String("full_path", fullPath),
		slog.Int("rows", t.Rows()),
		slog.Int("columns", t.Width()))

	sw, err := w.CreateStreamWriter(filePath, t.Names(), opts)
	if err != nil {
		return "", err
	}
	for i := 0; i < t.Rows(); i++ {
		if err := sw.WriteRecord(t.Record(i)); err != nil {
			sw.Close()
			return "", fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	if err := sw.Close(); err != nil {
		return "", err
	}
	return fullPath, nil
}

// StreamWriter provides streaming CSV writing for large tables
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
}

// CreateStreamWriter opens filePath and writes the header row
func (w *CSVWriter) CreateStreamWriter(filePath string, headers []string, opts WriteOptions) (*StreamWriter, error) {
	fullPath := w.resolvePath(filePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	if opts.BOMPrefix {
		if _, err := file.Write(utf8BOM); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	if opts.Delimiter != 0 {
		writer.Comma = opts.Delimiter
	}
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}
	return &StreamWriter{file: file, writer: writer}, nil
}

// WriteRecord writes a single record to the stream
func (s *StreamWriter) WriteRecord(record []string) error {
	return s.writer.Write(record)
}

// Close flushes and closes the stream writer
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) || w.paths == nil {
		return filePath
	}
	return w.paths.GetReportPath(filePath)
}
