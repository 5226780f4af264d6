package exporter

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"tabtweak/internal/config"
	"tabtweak/pkg/contracts/domain"
)

// Format is an output file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFor picks the format from the file extension, defaulting to CSV
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Exporter writes tables in any supported format
type Exporter struct {
	csv  *CSVWriter
	xlsx *XLSXWriter
}

// NewExporter creates an exporter writing under paths' reports directory
func NewExporter(paths *config.Paths, logger *slog.Logger) *Exporter {
	return &Exporter{
		csv:  NewCSVWriter(paths, logger),
		xlsx: NewXLSXWriter(paths, logger),
	}
}

// Export writes t to path in the format its extension implies and returns
// the resolved location.
func (e *Exporter) Export(path string, t *domain.Table, bom bool) (string, error) {
	switch FormatFor(path) {
	case FormatXLSX:
		return e.xlsx.WriteTable(path, t, "")
	case FormatCSV:
		return e.csv.WriteTable(path, t, WriteOptions{BOMPrefix: bom})
	}
	return "", fmt.Errorf("unsupported export format for %s", path)
}

// ExportSheets writes several tables into one workbook
func (e *Exporter) ExportSheets(path string, sheets ...Sheet) (string, error) {
	if FormatFor(path) != FormatXLSX {
		return "", fmt.Errorf("multiple sheets need an .xlsx target, got %s", path)
	}
	return e.xlsx.WriteSheets(path, sheets...)
}
