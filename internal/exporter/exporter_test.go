package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tabtweak/internal/config"
	"tabtweak/internal/shared/testutil"
	"tabtweak/pkg/contracts/domain"
)

func sampleTable() *domain.Table {
	return domain.MustTable(
		domain.NewTimestampColumn("EST", []time.Time{
			time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC),
		}, nil),
		domain.NewNumericColumn("PrecipitationCm", []float64{0, 0.00254}, nil),
		domain.NewTextColumn("Events", []string{"", "Rain"}, nil),
		domain.NewNumericColumn("CloudCover", []float64{5, 0}, []bool{true, false}),
	)
}

func readCSV(t *testing.T, path string) ([]byte, [][]string) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM))).ReadAll()
	require.NoError(t, err)
	return raw, records
}

func TestCSVWriter_WriteTable(t *testing.T) {
	paths := config.NewPaths(t.TempDir())
	logger, handler := testutil.NewTestLogger(t)
	w := NewCSVWriter(paths, logger)

	out, err := w.WriteTable("nyc-clean.csv", sampleTable(), WriteOptions{BOMPrefix: true})
	require.NoError(t, err)
	assert.Equal(t, paths.GetReportPath("nyc-clean.csv"), out)

	raw, records := readCSV(t, out)
	assert.True(t, bytes.HasPrefix(raw, utf8BOM))
	assert.Equal(t, [][]string{
		{"EST", "PrecipitationCm", "Events", "CloudCover"},
		{"2000-01-01", "0", "", "5"},
		{"2000-01-02", "0.00254", "Rain", ""},
	}, records)
	testutil.AssertLogAttr(t, handler, "component", "csv_writer")
}

func TestCSVWriter_Delimiter(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(nil, nil)

	out, err := w.WriteTable(filepath.Join(dir, "out.tsv"), sampleTable(), WriteOptions{Delimiter: '\t'})
	require.NoError(t, err)
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.False(t, bytes.HasPrefix(raw, utf8BOM))
	assert.Contains(t, string(raw), "EST\tPrecipitationCm\tEvents\tCloudCover\n")
}

func TestXLSXWriter_WriteSheets(t *testing.T) {
	paths := config.NewPaths(t.TempDir())
	w := NewXLSXWriter(paths, nil)

	summary := domain.MustTable(
		domain.NewTextColumn("column", []string{"PrecipitationCm"}, nil),
		domain.NewNumericColumn("mean", []float64{0.00127}, nil),
	)
	out, err := w.WriteSheets("nyc.xlsx",
		Sheet{Name: "clean", Table: sampleTable()},
		Sheet{Name: "describe", Table: summary},
	)
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"clean", "describe"}, f.GetSheetList())
	rows, err := f.GetRows("clean")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"EST", "PrecipitationCm", "Events", "CloudCover"}, rows[0])
	assert.Equal(t, []string{"2000-01-02", "0.00254", "Rain"}, rows[2], "trailing missing cell is dropped")

	cloud, err := f.GetCellValue("clean", "D2")
	require.NoError(t, err)
	assert.Equal(t, "5", cloud)

	_, err = w.WriteSheets("empty.xlsx")
	assert.Error(t, err)
}

func TestExporter_Export(t *testing.T) {
	paths := config.NewPaths(t.TempDir())
	exp := NewExporter(paths, nil)

	assert.Equal(t, FormatXLSX, FormatFor("a/b.XLSX"))
	assert.Equal(t, FormatCSV, FormatFor("a/b.csv"))
	assert.Equal(t, FormatCSV, FormatFor("a/b"))

	csvOut, err := exp.Export("t.csv", sampleTable(), false)
	require.NoError(t, err)
	_, records := readCSV(t, csvOut)
	assert.Len(t, records, 3)

	xlsxOut, err := exp.Export("t.xlsx", sampleTable(), false)
	require.NoError(t, err)
	assert.FileExists(t, xlsxOut)

	_, err = exp.ExportSheets("t.csv", Sheet{Name: "x", Table: sampleTable()})
	assert.Error(t, err)
}
