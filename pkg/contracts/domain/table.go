package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	dataframe "github.com/rocketlaunchr/dataframe-go"
)

// ColumnKind is the semantic type held by a column
type ColumnKind string

const (
	KindNumeric   ColumnKind = "numeric"
	KindText      ColumnKind = "text"
	KindTimestamp ColumnKind = "timestamp"
)

// Valid reports whether k is one of the known kinds
func (k ColumnKind) Valid() bool {
	switch k {
	case KindNumeric, KindText, KindTimestamp:
		return true
	}
	return false
}

// Column is a named typed sequence with missing slots, backed by a
// dataframe series. Numeric columns hold a SeriesFloat64 where NaN is the
// missing marker; text and timestamp columns hold a SeriesString or
// SeriesTime where nil is. A present numeric cell is therefore never NaN.
type Column struct {
	Name   string     `json:"name"`
	Kind   ColumnKind `json:"kind"`
	series dataframe.Series
}

// NewNumericColumn builds a numeric column. A nil valid slice marks every cell present.
func NewNumericColumn(name string, values []float64, valid []bool) Column {
	vals := make([]float64, len(values))
	for i, v := range values {
		if missingAt(valid, i) {
			vals[i] = math.NaN()
			continue
		}
		vals[i] = v
	}
	return Column{Name: name, Kind: KindNumeric, series: dataframe.NewSeriesFloat64(name, nil, vals)}
}

// NewTextColumn builds a text column. A nil valid slice marks every cell present.
func NewTextColumn(name string, values []string, valid []bool) Column {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		if !missingAt(valid, i) {
			cells[i] = v
		}
	}
	return Column{Name: name, Kind: KindText, series: newSeries(name, KindText, cells)}
}

// NewTimestampColumn builds a timestamp column. A nil valid slice marks every cell present.
func NewTimestampColumn(name string, values []time.Time, valid []bool) Column {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		if !missingAt(valid, i) {
			cells[i] = v
		}
	}
	return Column{Name: name, Kind: KindTimestamp, series: newSeries(name, KindTimestamp, cells)}
}

// ColumnFromSeries wraps a dataframe series. Int64 series widen to float64.
func ColumnFromSeries(ctx context.Context, s dataframe.Series) (Column, error) {
	name := s.Name()
	switch x := s.(type) {
	case *dataframe.SeriesFloat64:
		return Column{Name: name, Kind: KindNumeric, series: x}, nil
	case *dataframe.SeriesInt64:
		f, err := x.ToSeriesFloat64(ctx, false)
		if err != nil {
			return Column{}, fmt.Errorf("widen column %q: %w", name, err)
		}
		return Column{Name: name, Kind: KindNumeric, series: f}, nil
	case *dataframe.SeriesString:
		return Column{Name: name, Kind: KindText, series: x}, nil
	case *dataframe.SeriesTime:
		return Column{Name: name, Kind: KindTimestamp, series: x}, nil
	}
	return Column{}, fmt.Errorf("column %q has unsupported series type %s", name, s.Type())
}

func missingAt(valid []bool, i int) bool {
	return valid != nil && (i >= len(valid) || !valid[i])
}

// newSeries builds the series for kind from cells holding the concrete
// value or nil
func newSeries(name string, kind ColumnKind, cells []interface{}) dataframe.Series {
	init := &dataframe.SeriesInit{Capacity: len(cells)}
	switch kind {
	case KindNumeric:
		return dataframe.NewSeriesFloat64(name, init, cells...)
	case KindTimestamp:
		return dataframe.NewSeriesTime(name, init, cells...)
	default:
		return dataframe.NewSeriesString(name, init, cells...)
	}
}

func kindOf(s dataframe.Series) ColumnKind {
	switch s.(type) {
	case *dataframe.SeriesFloat64:
		return KindNumeric
	case *dataframe.SeriesString:
		return KindText
	case *dataframe.SeriesTime:
		return KindTimestamp
	}
	return ""
}

// Series returns the backing series. Callers must not mutate it.
func (c Column) Series() dataframe.Series {
	return c.series
}

// Len returns the number of cells
func (c Column) Len() int {
	if c.series == nil {
		return 0
	}
	return c.series.NRows()
}

// IsMissing reports whether cell i holds the missing marker
func (c Column) IsMissing(i int) bool {
	return c.series.Value(i) == nil
}

// MissingCount returns the number of missing cells
func (c Column) MissingCount() int {
	if c.series == nil {
		return 0
	}
	n, _ := c.series.NilCount()
	return n
}

// NumAt returns the numeric value at i, zero when missing
func (c Column) NumAt(i int) float64 {
	v, _ := c.series.Value(i).(float64)
	return v
}

// TextAt returns the text value at i, empty when missing
func (c Column) TextAt(i int) string {
	v, _ := c.series.Value(i).(string)
	return v
}

// TimeAt returns the timestamp at i, the zero time when missing
func (c Column) TimeAt(i int) time.Time {
	v, _ := c.series.Value(i).(time.Time)
	return v
}

// Nums copies the numeric values out, zero at missing slots
func (c Column) Nums() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = c.NumAt(i)
	}
	return out
}

// Texts copies the text values out, empty at missing slots
func (c Column) Texts() []string {
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.TextAt(i)
	}
	return out
}

// Times copies the timestamps out, the zero time at missing slots
func (c Column) Times() []time.Time {
	out := make([]time.Time, c.Len())
	for i := range out {
		out[i] = c.TimeAt(i)
	}
	return out
}

// Mask reports per cell whether it is present
func (c Column) Mask() []bool {
	out := make([]bool, c.Len())
	for i := range out {
		out[i] = !c.IsMissing(i)
	}
	return out
}

// Float returns the numeric value at i. Timestamps convert to Unix seconds.
func (c Column) Float(i int) (float64, bool) {
	switch v := c.series.Value(i).(type) {
	case float64:
		return v, true
	case time.Time:
		return float64(v.Unix()), true
	}
	return 0, false
}

// String renders cell i the way a delimited text file would hold it.
// Missing cells render as the empty string.
func (c Column) String(i int) string {
	switch v := c.series.Value(i).(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	case string:
		return v
	}
	return ""
}

// Value returns cell i as a JSON friendly value, nil when missing
func (c Column) Value(i int) any {
	return c.series.Value(i)
}

// Set overwrites cell i in place; nil marks it missing. It mutates the
// backing series, so call it only on a column obtained from Clone.
func (c Column) Set(i int, v any) {
	c.series.Update(i, v)
}

// Clone returns a deep copy of the column
func (c Column) Clone() Column {
	if c.series == nil {
		return c
	}
	return Column{Name: c.Name, Kind: c.Kind, series: c.series.Copy()}
}

// Renamed returns a deep copy of the column under a new name
func (c Column) Renamed(name string) Column {
	out := c.Clone()
	out.Name = name
	if out.series != nil {
		out.series.Rename(name)
	}
	return out
}

// Pick returns a deep copy holding only the given row positions in order
func (c Column) Pick(rows []int) Column {
	cells := make([]interface{}, len(rows))
	for j, i := range rows {
		cells[j] = c.series.Value(i)
	}
	return Column{Name: c.Name, Kind: c.Kind, series: newSeries(c.Name, c.Kind, cells)}
}

// Table is an ordered collection of named, row-aligned columns.
// A Table is treated as an immutable value: every operation that changes
// shape returns a new Table.
type Table struct {
	columns []Column
	index   map[string]int
	rows    int
}

// NewTable builds a table from columns. All columns must share one length
// and names must be unique.
func NewTable(columns ...Column) (*Table, error) {
	t := &Table{
		columns: make([]Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if i == 0 {
			t.rows = col.Len()
		}
		if err := t.check(col); err != nil {
			return nil, err
		}
		if _, exists := t.index[col.Name]; exists {
			return nil, fmt.Errorf("duplicate column name %q", col.Name)
		}
		t.index[col.Name] = len(t.columns)
		t.columns = append(t.columns, col)
	}
	return t, nil
}

// MustTable is like NewTable but panics on error. Intended for fixtures.
func MustTable(columns ...Column) *Table {
	t, err := NewTable(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// FromFrame wraps a dataframe's series as a table
func FromFrame(ctx context.Context, df *dataframe.DataFrame) (*Table, error) {
	columns := make([]Column, 0, len(df.Series))
	for _, s := range df.Series {
		col, err := ColumnFromSeries(ctx, s)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return NewTable(columns...)
}

func (t *Table) check(col Column) error {
	if !col.Kind.Valid() {
		return fmt.Errorf("column %q has unknown kind %q", col.Name, col.Kind)
	}
	if col.series == nil {
		return fmt.Errorf("column %q has no series", col.Name)
	}
	if k := kindOf(col.series); k != col.Kind {
		return fmt.Errorf("column %q is %s but holds a %s series", col.Name, col.Kind, col.series.Type())
	}
	if col.series.Name() != col.Name {
		return fmt.Errorf("column %q holds series %q", col.Name, col.series.Name())
	}
	if col.Len() != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d", col.Name, col.Len(), t.rows)
	}
	return nil
}

// Rows returns the row count
func (t *Table) Rows() int {
	return t.rows
}

// Width returns the column count
func (t *Table) Width() int {
	return len(t.columns)
}

// Names returns column names in order
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether a column exists
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column. Callers must not mutate its series.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// Columns returns the columns in order. Callers must not mutate them.
func (t *Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

// Frame returns a dataframe over the table's series. The series are
// shared with the table, so the frame must be treated as read only.
func (t *Table) Frame() *dataframe.DataFrame {
	series := make([]dataframe.Series, len(t.columns))
	for i, c := range t.columns {
		series[i] = c.series
	}
	return dataframe.NewDataFrame(series...)
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	out := &Table{
		columns: make([]Column, len(t.columns)),
		index:   make(map[string]int, len(t.index)),
		rows:    t.rows,
	}
	for i, c := range t.columns {
		out.columns[i] = c.Clone()
		out.index[c.Name] = i
	}
	return out
}

// With returns a new table where col replaces the column of the same name
// in place, or is appended when no such column exists.
func (t *Table) With(col Column) (*Table, error) {
	if len(t.columns) == 0 {
		return NewTable(col)
	}
	if err := t.check(col); err != nil {
		return nil, err
	}
	out := t.shallow()
	if i, ok := out.index[col.Name]; ok {
		out.columns[i] = col
		return out, nil
	}
	out.index[col.Name] = len(out.columns)
	out.columns = append(out.columns, col)
	return out, nil
}

// Without returns a new table lacking the named columns. Unknown names are ignored.
func (t *Table) Without(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := make([]Column, 0, len(t.columns))
	for _, c := range t.columns {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	out := &Table{columns: kept, index: make(map[string]int, len(kept)), rows: t.rows}
	for i, c := range kept {
		out.index[c.Name] = i
	}
	return out
}

// Pick returns a new table holding only the given row positions
func (t *Table) Pick(rows []int) *Table {
	out := &Table{
		columns: make([]Column, len(t.columns)),
		index:   make(map[string]int, len(t.columns)),
		rows:    len(rows),
	}
	for i, c := range t.columns {
		out.columns[i] = c.Pick(rows)
		out.index[c.Name] = i
	}
	return out
}

// Head returns the first n rows
func (t *Table) Head(n int) *Table {
	if n > t.rows {
		n = t.rows
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return t.Pick(rows)
}

// Record renders row i as strings in column order
func (t *Table) Record(i int) []string {
	rec := make([]string, len(t.columns))
	for j, c := range t.columns {
		rec[j] = c.String(i)
	}
	return rec
}

func (t *Table) shallow() *Table {
	out := &Table{
		columns: append([]Column(nil), t.columns...),
		index:   make(map[string]int, len(t.index)),
		rows:    t.rows,
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	return out
}

// TableSchema describes column names and kinds
type TableSchema struct {
	Name    string     `json:"name"`
	Kind    ColumnKind `json:"kind"`
	Missing int        `json:"missing"`
}

// Schema returns per column metadata
func (t *Table) Schema() []TableSchema {
	out := make([]TableSchema, len(t.columns))
	for i, c := range t.columns {
		out[i] = TableSchema{Name: c.Name, Kind: c.Kind, Missing: c.MissingCount()}
	}
	return out
}

// MarshalJSON encodes the table as a schema plus row arrays
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := make([][]any, t.rows)
	for i := range rows {
		row := make([]any, len(t.columns))
		for j, c := range t.columns {
			row[j] = c.Value(i)
		}
		rows[i] = row
	}
	return json.Marshal(struct {
		Columns []TableSchema `json:"columns"`
		Rows    [][]any       `json:"rows"`
	}{Columns: t.Schema(), Rows: rows})
}
