package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"tabtweak/internal/config"
	"tabtweak/pkg/contracts/domain"
)

// Sheet is one named table in a workbook
type Sheet struct {
	Name  string
	Table *domain.Table
}

// XLSXWriter writes tables as Excel workbooks
type XLSXWriter struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewXLSXWriter creates a workbook writer resolving relative paths under
// the reports directory.
func NewXLSXWriter(paths *config.Paths, logger *slog.Logger) *XLSXWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXWriter{paths: paths, logger: logger.With(slog.String("component", "xlsx_writer"))}
}

// WriteTable writes t to the first sheet of a new workbook
func (w *XLSXWriter) WriteTable(filePath string, t *domain.Table, sheet string) (string, error) {
	if sheet == "" {
		sheet = "Sheet1"
	}
	return w.WriteSheets(filePath, Sheet{Name: sheet, Table: t})
}

// WriteSheets writes each table to its own sheet, in order. Numeric cells
// stay numbers; timestamps use their text form; missing cells stay empty.
func (w *XLSXWriter) WriteSheets(filePath string, sheets ...Sheet) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("no sheets to write")
	}
	fullPath := filePath
	if !filepath.IsAbs(filePath) && w.paths != nil {
		fullPath = w.paths.GetReportPath(filePath)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", fmt.Errorf("failed to create header style: %w", err)
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				return "", fmt.Errorf("failed to name sheet %q: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return "", fmt.Errorf("failed to add sheet %q: %w", s.Name, err)
		}
		if err := writeSheet(f, s, headerStyle); err != nil {
			return "", err
		}
	}

	if err := f.SaveAs(fullPath); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}
	w.logger.Info("wrote workbook",
		slog.String("full_path", fullPath),
		slog.Int("sheets", len(sheets)))
	return fullPath, nil
}

func writeSheet(f *excelize.File, s Sheet, headerStyle int) error {
	sw, err := f.NewStreamWriter(s.Name)
	if err != nil {
		return fmt.Errorf("failed to open sheet %q: %w", s.Name, err)
	}

	columns := s.Table.Columns()
	header := make([]interface{}, len(columns))
	for j, c := range columns {
		header[j] = excelize.Cell{StyleID: headerStyle, Value: c.Name}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := 0; i < s.Table.Rows(); i++ {
		row := make([]interface{}, len(columns))
		for j, c := range columns {
			row[j] = cellValue(c, i)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	return sw.Flush()
}

func cellValue(c domain.Column, i int) interface{} {
	if c.IsMissing(i) {
		return nil
	}
	if c.Kind == domain.KindNumeric {
		return c.NumAt(i)
	}
	return c.String(i)
}
