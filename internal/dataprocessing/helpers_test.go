package dataprocessing

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tabtweak/internal/errors"
	"tabtweak/pkg/contracts/domain"
)

// textCol builds a text column; nil entries are missing
func textCol(name string, cells ...any) domain.Column {
	values := make([]string, len(cells))
	valid := make([]bool, len(cells))
	for i, c := range cells {
		if c == nil {
			continue
		}
		values[i] = c.(string)
		valid[i] = true
	}
	return domain.NewTextColumn(name, values, valid)
}

// numCol builds a numeric column; nil entries are missing
func numCol(name string, cells ...any) domain.Column {
	values := make([]float64, len(cells))
	valid := make([]bool, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case nil:
			continue
		case int:
			values[i] = float64(v)
		case float64:
			values[i] = v
		}
		valid[i] = true
	}
	return domain.NewNumericColumn(name, values, valid)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func column(t *testing.T, tbl *domain.Table, name string) domain.Column {
	t.Helper()
	col, ok := tbl.Column(name)
	require.True(t, ok, "column %q not found in %v", name, tbl.Names())
	return col
}

// tableSnapshot is a comparable view of a table: its schema plus every
// cell value, nil where missing
type tableSnapshot struct {
	Schema []domain.TableSchema
	Cells  [][]any
}

func snapshot(t *domain.Table) tableSnapshot {
	snap := tableSnapshot{Schema: t.Schema()}
	for _, col := range t.Columns() {
		cells := make([]any, col.Len())
		for i := range cells {
			cells[i] = col.Value(i)
		}
		snap.Cells = append(snap.Cells, cells)
	}
	return snap
}

// diffTables reports differences in names, kinds, values and validity
func diffTables(a, b *domain.Table) string {
	return cmp.Diff(snapshot(a), snapshot(b))
}

func assertConfigError(t *testing.T, err error, cause error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause), "expected %v, got %v", cause, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig), "expected CONFIG error, got %v", err)
}
