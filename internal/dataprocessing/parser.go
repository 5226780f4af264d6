package dataprocessing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/xuri/excelize/v2"

	apperrors "tabtweak/internal/errors"
	"tabtweak/pkg/contracts/domain"
)

const utf8BOM = "\ufeff"

// nilCell marks a missing cell in the canonical CSV handed to the frame
// loader. It is never empty so single column rows are not skipped as blank.
const nilCell = "\x00NA\x00"

// ErrInputTooLarge is returned when the decoded input exceeds the reader limit
var ErrInputTooLarge = errors.New("input exceeds size limit")

// Reader materializes raw delimited text or spreadsheets into a Table
type Reader struct {
	opts     domain.ReadOptions
	logger   *slog.Logger
	maxBytes int64
}

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithLogger sets the reader's logger
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxBytes caps the decoded input size. Zero means unlimited.
func WithMaxBytes(n int64) ReaderOption {
	return func(r *Reader) { r.maxBytes = n }
}

// NewReader creates a reader for one dataset's read options
func NewReader(opts domain.ReadOptions, options ...ReaderOption) *Reader {
	r := &Reader{opts: opts, logger: slog.Default()}
	for _, opt := range options {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "reader"))
	return r
}

// ReadFile reads a table from disk. Files ending in .xlsx are read as
// spreadsheets; files ending in .gz are gunzipped first.
func ReadFile(ctx context.Context, path string, opts domain.ReadOptions, options ...ReaderOption) (*domain.Table, error) {
	return NewReader(opts, options...).ReadFile(ctx, path)
}

// ReadFile reads a table from disk
func (r *Reader) ReadFile(ctx context.Context, path string) (*domain.Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return r.readXLSX(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	var src io.Reader = f
	if r.opts.Gzip || strings.EqualFold(filepath.Ext(path), ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("failed to open gzip stream %s", path), err)
		}
		defer gz.Close()
		src = gz
	}

	t, err := r.Read(ctx, src)
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "table loaded",
		slog.String("path", path),
		slog.Int("rows", t.Rows()),
		slog.Int("columns", t.Width()))
	return t, nil
}

// Read parses delimited text into a table
func (r *Reader) Read(ctx context.Context, src io.Reader) (*domain.Table, error) {
	if r.maxBytes > 0 {
		src = &limitedReader{r: src, remaining: r.maxBytes}
	}

	records, err := r.records(ctx, src)
	if err != nil {
		return nil, err
	}
	return r.build(ctx, records)
}

func (r *Reader) records(ctx context.Context, src io.Reader) ([][]string, error) {
	delim := r.opts.Delimiter
	if delim == "whitespace" {
		return splitFields(ctx, src)
	}

	comma, err := delimiterRune(delim)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	var records [][]string
	for {
		if len(records)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, ErrInputTooLarge) {
				return nil, apperrors.NewAppValidationError("input too large", err)
			}
			return nil, apperrors.NewParsingError("failed to read delimited input", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func splitFields(ctx context.Context, src io.Reader) ([][]string, error) {
	var records [][]string
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(records)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		records = append(records, fields)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, ErrInputTooLarge) {
			return nil, apperrors.NewAppValidationError("input too large", err)
		}
		return nil, apperrors.NewParsingError("failed to read whitespace separated input", err)
	}
	return records, nil
}

func delimiterRune(delim string) (rune, error) {
	switch delim {
	case "", ",":
		return ',', nil
	case "space", " ":
		return ' ', nil
	case "tab", "\t":
		return '\t', nil
	}
	runes := []rune(delim)
	if len(runes) != 1 {
		return 0, invalidRuleError("read", "delimiter %q must be a single character", delim)
	}
	return runes[0], nil
}

// build turns raw records into typed columns. The header row supplies names
// unless explicit names are configured. Records are rewritten as canonical
// CSV and materialized by the frame loader: a column whose present cells all
// parse as numbers is inferred as numeric, anything else is pinned to text.
// Booleans and timestamps stay text until a coerce rule says otherwise.
func (r *Reader) build(ctx context.Context, records [][]string) (*domain.Table, error) {
	names := r.opts.Names
	body := records
	if len(names) == 0 {
		if len(records) == 0 {
			return domain.NewTable()
		}
		names = append([]string(nil), records[0]...)
		if len(names) > 0 {
			names[0] = strings.TrimPrefix(names[0], utf8BOM)
		}
		body = records[1:]
	}

	width := len(names)
	if width == 0 {
		return domain.NewTable()
	}
	if err := checkHeader(names); err != nil {
		return nil, err
	}

	na := make(map[string]bool, len(r.opts.NAValues))
	for _, tok := range r.opts.NAValues {
		na[tok] = true
	}

	present := make([]int, width)
	numeric := make([]bool, width)
	for j := range numeric {
		numeric[j] = !r.opts.NoInference
	}
	rows := make([][]string, len(body))
	for i, rec := range body {
		if len(rec) > width {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("row %d has %d fields, expected %d", i+1, len(rec), width), nil,
			).WithContext("row", i+1)
		}
		row := make([]string, width)
		for j := range row {
			if j >= len(rec) || rec[j] == "" || na[rec[j]] {
				row[j] = nilCell
				continue
			}
			row[j] = rec[j]
			present[j]++
			if numeric[j] {
				if _, ok := ParseNumber(rec[j]); !ok {
					numeric[j] = false
				}
			}
		}
		rows[i] = row
	}

	dictate := make(map[string]interface{}, width)
	for j, name := range names {
		if !numeric[j] || present[j] == 0 {
			dictate[name] = ""
			continue
		}
		for _, row := range rows {
			if row[j] != nilCell {
				row[j] = strings.TrimSpace(row[j])
			}
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(names); err != nil {
		return nil, apperrors.NewParsingError("failed to encode table header", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, apperrors.NewParsingError("failed to encode table rows", err)
	}

	nilValue := nilCell
	df, err := imports.LoadFromCSV(ctx, bytes.NewReader(buf.Bytes()), imports.CSVLoadOptions{
		Comma:           ',',
		NilValue:        &nilValue,
		DictateDataType: dictate,
		InferDataTypes:  true,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.NewParsingError("failed to materialize table", err)
	}

	t, err := domain.FromFrame(ctx, df)
	if err != nil {
		return nil, apperrors.NewParsingError("invalid table header", err)
	}
	return t, nil
}

// checkHeader rejects names the frame loader cannot hold
func checkHeader(names []string) error {
	if len(names) == 1 && names[0] == "" {
		return apperrors.NewParsingError("invalid table header: the only column has no name", nil)
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return apperrors.NewParsingError(fmt.Sprintf("invalid table header: duplicate column %q", name), nil).
				WithContext("column", name)
		}
		seen[name] = true
	}
	return nil
}

func (r *Reader) readXLSX(ctx context.Context, path string) (*domain.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open workbook %s", path), err)
	}
	defer f.Close()

	sheet := r.opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.NewParsingError(fmt.Sprintf("workbook %s has no sheets", path), nil)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("failed to read sheet %q", sheet), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := r.build(ctx, rows)
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "workbook loaded",
		slog.String("path", path),
		slog.String("sheet", sheet),
		slog.Int("rows", t.Rows()),
		slog.Int("columns", t.Width()))
	return t, nil
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		// read one more byte to tell EOF from overflow
		var one [1]byte
		n, err := l.r.Read(one[:])
		if n > 0 {
			return 0, ErrInputTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
