package domain

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTable(t *testing.T) {
	tests := []struct {
		name        string
		columns     []Column
		wantErr     bool
		errContains string
	}{
		{
			name: "aligned columns",
			columns: []Column{
				NewNumericColumn("a", []float64{1, 2}, nil),
				NewTextColumn("b", []string{"x", "y"}, nil),
			},
		},
		{
			name: "length mismatch",
			columns: []Column{
				NewNumericColumn("a", []float64{1, 2}, nil),
				NewTextColumn("b", []string{"x"}, nil),
			},
			wantErr:     true,
			errContains: "has 1 rows",
		},
		{
			name: "duplicate names",
			columns: []Column{
				NewNumericColumn("a", []float64{1}, nil),
				NewNumericColumn("a", []float64{2}, nil),
			},
			wantErr:     true,
			errContains: "duplicate column name",
		},
		{
			name:        "unknown kind",
			columns:     []Column{{Name: "a", Kind: "blob"}},
			wantErr:     true,
			errContains: "unknown kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := NewTable(tt.columns...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2, tbl.Rows())
			assert.Equal(t, []string{"a", "b"}, tbl.Names())
		})
	}
}

func TestTable_WithReplacesInPlace(t *testing.T) {
	tbl := MustTable(
		NewNumericColumn("a", []float64{1, 2}, nil),
		NewNumericColumn("b", []float64{3, 4}, nil),
	)

	replaced, err := tbl.With(NewTextColumn("a", []string{"x", "y"}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, replaced.Names())

	col, ok := replaced.Column("a")
	require.True(t, ok)
	assert.Equal(t, KindText, col.Kind)

	// original untouched
	orig, _ := tbl.Column("a")
	assert.Equal(t, KindNumeric, orig.Kind)

	appended, err := tbl.With(NewNumericColumn("c", []float64{5, 6}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, appended.Names())
	assert.Equal(t, 2, tbl.Width())

	_, err = tbl.With(NewNumericColumn("d", []float64{1}, nil))
	assert.Error(t, err)
}

func TestTable_WithoutAndPick(t *testing.T) {
	tbl := MustTable(
		NewNumericColumn("obs", []float64{1, 2, 3}, nil),
		NewTextColumn("name", []string{"a", "b", "c"}, []bool{true, false, true}),
	)

	dropped := tbl.Without("obs", "unknown")
	assert.Equal(t, []string{"name"}, dropped.Names())
	assert.Equal(t, 3, dropped.Rows())

	picked := tbl.Pick([]int{2, 1})
	assert.Equal(t, 2, picked.Rows())
	name, _ := picked.Column("name")
	assert.Equal(t, "c", name.String(0))
	assert.True(t, name.IsMissing(1))

	head := tbl.Head(10)
	assert.Equal(t, 3, head.Rows())
}

func TestColumn_StringAndFloat(t *testing.T) {
	day := time.Date(1999, 1, 15, 0, 0, 0, 0, time.UTC)
	ts := NewTimestampColumn("date", []time.Time{day, {}}, []bool{true, false})
	assert.Equal(t, "1999-01-15", ts.String(0))
	assert.Equal(t, "", ts.String(1))

	v, ok := ts.Float(0)
	assert.True(t, ok)
	assert.Equal(t, float64(day.Unix()), v)

	num := NewNumericColumn("x", []float64{0.254, 0}, []bool{true, false})
	assert.Equal(t, "0.254", num.String(0))
	_, ok = num.Float(1)
	assert.False(t, ok)
	assert.Equal(t, 1, num.MissingCount())

	txt := NewTextColumn("t", []string{"a"}, nil)
	_, ok = txt.Float(0)
	assert.False(t, ok)
}

func TestTable_CloneIsDeep(t *testing.T) {
	tbl := MustTable(NewNumericColumn("a", []float64{1, 2}, nil))
	cp := tbl.Clone()

	col, _ := cp.Column("a")
	col.Set(0, 99.0)
	col.Set(1, nil)
	assert.Equal(t, 99.0, col.NumAt(0))
	assert.True(t, col.IsMissing(1))
	assert.Equal(t, 1, col.MissingCount())

	orig, _ := tbl.Column("a")
	assert.Equal(t, 1.0, orig.NumAt(0))
	assert.Zero(t, orig.MissingCount())
}

func TestColumn_Accessors(t *testing.T) {
	day := time.Date(1980, 3, 7, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		col     Column
		mask    []bool
		missing int
	}{
		{
			name:    "numeric",
			col:     NewNumericColumn("x", []float64{1.5, 7, -2}, []bool{true, false, true}),
			mask:    []bool{true, false, true},
			missing: 1,
		},
		{
			name:    "text keeps empty strings present",
			col:     NewTextColumn("s", []string{"", "b", "c"}, []bool{true, true, false}),
			mask:    []bool{true, true, false},
			missing: 1,
		},
		{
			name:    "timestamp",
			col:     NewTimestampColumn("d", []time.Time{day, {}, day}, []bool{true, false, false}),
			mask:    []bool{true, false, false},
			missing: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 3, tt.col.Len())
			assert.Equal(t, tt.mask, tt.col.Mask())
			assert.Equal(t, tt.missing, tt.col.MissingCount())
			assert.Equal(t, tt.col.Name, tt.col.Series().Name())
		})
	}

	num := tests[0].col
	assert.Equal(t, []float64{1.5, 0, -2}, num.Nums())
	assert.Nil(t, num.Value(1))

	txt := tests[1].col
	assert.Equal(t, []string{"", "b", ""}, txt.Texts())
	assert.Equal(t, "", txt.Value(0))

	ts := tests[2].col
	assert.True(t, day.Equal(ts.TimeAt(0)))
	assert.True(t, ts.TimeAt(1).IsZero())
}

func TestColumn_RenamedKeepsSeriesInStep(t *testing.T) {
	col := NewNumericColumn(" Max Humidity", []float64{90}, nil)
	renamed := col.Renamed("Max_Humidity")

	assert.Equal(t, "Max_Humidity", renamed.Name)
	assert.Equal(t, "Max_Humidity", renamed.Series().Name())
	assert.Equal(t, " Max Humidity", col.Series().Name())

	tbl, err := NewTable(renamed)
	require.NoError(t, err)
	assert.Equal(t, []string{"Max_Humidity"}, tbl.Names())
}

func TestTable_FrameRoundTrip(t *testing.T) {
	day := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := MustTable(
		NewNumericColumn("x", []float64{1, 0}, []bool{true, false}),
		NewTextColumn("s", []string{"a", "b"}, nil),
		NewTimestampColumn("d", []time.Time{day, day.AddDate(0, 0, 1)}, nil),
	)

	df := tbl.Frame()
	assert.Equal(t, 2, df.NRows())
	assert.Equal(t, []string{"x", "s", "d"}, df.Names())

	back, err := FromFrame(context.Background(), df)
	require.NoError(t, err)
	assert.Equal(t, tbl.Schema(), back.Schema())
	assert.Equal(t, tbl.Record(0), back.Record(0))
	assert.Equal(t, tbl.Record(1), back.Record(1))
}

func TestColumnFromSeries(t *testing.T) {
	ints := dataframe.NewSeriesInt64("obs", nil, int64(1), nil, int64(3))
	col, err := ColumnFromSeries(context.Background(), ints)
	require.NoError(t, err)
	assert.Equal(t, KindNumeric, col.Kind)
	assert.Equal(t, []float64{1, 0, 3}, col.Nums())
	assert.True(t, col.IsMissing(1))

	mixed := dataframe.NewSeriesMixed("m", nil, 1, "a")
	_, err = ColumnFromSeries(context.Background(), mixed)
	assert.Error(t, err)
}

func TestNewTable_RejectsForeignSeries(t *testing.T) {
	col := NewNumericColumn("a", []float64{1}, nil)
	col.Kind = KindText

	_, err := NewTable(col)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds a")
}

func TestTable_MarshalJSON(t *testing.T) {
	tbl := MustTable(
		NewNumericColumn("a", []float64{1.5, 0}, []bool{true, false}),
		NewTextColumn("b", []string{"x", ""}, nil),
	)

	data, err := json.Marshal(tbl)
	require.NoError(t, err)

	var decoded struct {
		Columns []TableSchema `json:"columns"`
		Rows    [][]any       `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Columns, 2)
	assert.Equal(t, KindNumeric, decoded.Columns[0].Kind)
	assert.Equal(t, 1, decoded.Columns[0].Missing)
	assert.Equal(t, 1.5, decoded.Rows[0][0])
	assert.Nil(t, decoded.Rows[1][0])
	assert.Equal(t, "", decoded.Rows[1][1])
}
