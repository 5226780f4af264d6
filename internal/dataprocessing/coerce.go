package dataprocessing

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"tabtweak/pkg/contracts/domain"
)

// twoDigitPivot matches strftime %y: 69-99 fall in the 1900s, 00-68 in the 2000s
const twoDigitPivot = 69

// Coerce converts columns to their target kinds in rule order. Cells that
// cannot be interpreted as the target kind become missing; the step itself
// only fails on configuration problems.
func Coerce(ctx context.Context, t *domain.Table, rules []domain.CoerceRule) (*domain.Table, error) {
	out := t
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			col domain.Column
			err error
		)
		if len(rule.Sources) > 0 {
			col, err = combineDate(out, rule)
		} else {
			col, err = coerceColumn(ctx, out, rule)
		}
		if err != nil {
			return nil, err
		}

		if out, err = out.With(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func coerceColumn(ctx context.Context, t *domain.Table, rule domain.CoerceRule) (domain.Column, error) {
	col, ok := t.Column(rule.Column)
	if !ok {
		return domain.Column{}, missingColumnError(StepCoerce, rule.Column)
	}

	switch rule.To {
	case domain.KindNumeric:
		return toNumeric(ctx, col)
	case domain.KindText:
		return toText(col), nil
	case domain.KindTimestamp:
		parser, ok := newTimeParser(rule.Layout)
		if !ok {
			return domain.Column{}, invalidRuleError(StepCoerce, "unsupported layout %q for column %q", rule.Layout, rule.Column)
		}
		return toTimestamp(col, parser), nil
	default:
		return domain.Column{}, invalidRuleError(StepCoerce, "unknown target kind %q for column %q", rule.To, rule.Column)
	}
}

// ParseNumber parses a trimmed decimal cell. NaN and infinities are rejected.
func ParseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

var errNotNumber = errors.New("not a number")

// toNumeric converts through the series conversions. Text cells that do
// not parse become missing; timestamps become Unix seconds.
func toNumeric(ctx context.Context, col domain.Column) (domain.Column, error) {
	var (
		f   *dataframe.SeriesFloat64
		err error
	)
	switch s := col.Series().(type) {
	case *dataframe.SeriesFloat64:
		return col.Clone(), nil
	case *dataframe.SeriesTime:
		f, err = s.ToSeriesFloat64(ctx, false)
	case *dataframe.SeriesString:
		f, err = s.ToSeriesFloat64(ctx, false, func(v interface{}) (float64, error) {
			if n, ok := ParseNumber(*v.(*string)); ok {
				return n, nil
			}
			return 0, errNotNumber
		})
	default:
		return domain.Column{}, invalidRuleError(StepCoerce, "column %q cannot be converted to numeric", col.Name)
	}
	if f == nil {
		// row errors come back with a series; only cancellation drops it
		return domain.Column{}, err
	}
	return domain.ColumnFromSeries(ctx, f)
}

func toText(col domain.Column) domain.Column {
	if col.Kind == domain.KindText {
		return col.Clone()
	}
	values := make([]string, col.Len())
	for i := range values {
		values[i] = col.String(i)
	}
	return domain.NewTextColumn(col.Name, values, col.Mask())
}

func toTimestamp(col domain.Column, parser *timeParser) domain.Column {
	if col.Kind == domain.KindTimestamp {
		return col.Clone()
	}

	values := make([]time.Time, col.Len())
	valid := make([]bool, col.Len())
	for i := range values {
		if col.IsMissing(i) {
			continue
		}
		raw := col.String(i)
		if col.Kind == domain.KindNumeric {
			// numeric date codes such as 980115 must be integral
			n := col.NumAt(i)
			if n != math.Trunc(n) {
				continue
			}
			raw = strconv.FormatInt(int64(n), 10)
		}
		values[i], valid[i] = parser.parse(raw)
	}
	return domain.NewTimestampColumn(col.Name, values, valid)
}

// combineDate builds a timestamp column from year, month and day columns.
// Two-digit years expand with the %y pivot; impossible dates become missing.
func combineDate(t *domain.Table, rule domain.CoerceRule) (domain.Column, error) {
	if rule.To != domain.KindTimestamp {
		return domain.Column{}, invalidRuleError(StepCoerce, "sources can only be combined into a timestamp, got %q", rule.To)
	}
	if len(rule.Sources) != 3 {
		return domain.Column{}, invalidRuleError(StepCoerce, "column %q needs year, month and day sources, got %d", rule.Column, len(rule.Sources))
	}

	parts := make([]domain.Column, 3)
	for i, name := range rule.Sources {
		col, ok := t.Column(name)
		if !ok {
			return domain.Column{}, missingColumnError(StepCoerce, name)
		}
		if col.Kind == domain.KindTimestamp {
			return domain.Column{}, invalidRuleError(StepCoerce, "date part %q is already a timestamp", name)
		}
		parts[i] = col
	}

	values := make([]time.Time, t.Rows())
	valid := make([]bool, t.Rows())
	for i := range values {
		year, ok1 := intCell(parts[0], i)
		month, ok2 := intCell(parts[1], i)
		day, ok3 := intCell(parts[2], i)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		values[i], valid[i] = makeDate(ExpandYear(year), month, day)
	}
	return domain.NewTimestampColumn(rule.Column, values, valid), nil
}

// ExpandYear maps a two-digit year onto a full year using the %y pivot.
// Years outside 0-99 are returned unchanged.
func ExpandYear(y int) int {
	if y < 0 || y > 99 {
		return y
	}
	if y >= twoDigitPivot {
		return 1900 + y
	}
	return 2000 + y
}

func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow such as Feb 30; reject instead
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func intCell(col domain.Column, i int) (int, bool) {
	if col.IsMissing(i) {
		return 0, false
	}
	var v float64
	if col.Kind == domain.KindNumeric {
		v = col.NumAt(i)
	} else {
		f, ok := ParseNumber(col.TextAt(i))
		if !ok {
			return 0, false
		}
		v = f
	}
	if v != math.Trunc(v) {
		return 0, false
	}
	return int(v), true
}
