package dataprocessing

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rocketlaunchr/dataframe-go"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tabtweak/pkg/contracts/domain"
)

// TableAnalyzer implements Analyzer over in-memory tables
type TableAnalyzer struct {
	summarizer *Summarizer
	logger     *slog.Logger
}

// NewTableAnalyzer creates an analyzer
func NewTableAnalyzer(logger *slog.Logger) *TableAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableAnalyzer{
		summarizer: NewSummarizer(logger, DefaultSummarizerConfig()),
		logger:     logger.With(slog.String("component", "analyzer")),
	}
}

var _ Analyzer = (*TableAnalyzer)(nil)

func (a *TableAnalyzer) Describe(ctx context.Context, t *domain.Table) domain.TableDescription {
	return a.summarizer.Describe(ctx, t)
}

func (a *TableAnalyzer) Corr(t *domain.Table, x, y string) (domain.Correlation, error) {
	return Corr(t, x, y)
}

func (a *TableAnalyzer) GroupBy(ctx context.Context, t *domain.Table, keys []domain.GroupKey, aggs []domain.Aggregation) (*domain.Table, error) {
	return GroupBy(ctx, t, keys, aggs)
}

func (a *TableAnalyzer) Resample(ctx context.Context, t *domain.Table, timeColumn string, freq domain.Frequency, aggs []domain.Aggregation) (*domain.Table, error) {
	return Resample(ctx, t, timeColumn, freq, aggs)
}

func (a *TableAnalyzer) Filter(ctx context.Context, t *domain.Table, preds ...domain.Predicate) (*domain.Table, error) {
	return Filter(ctx, t, preds...)
}

// Corr computes the Pearson coefficient of two columns over rows where both
// are present. Timestamp columns take part as Unix seconds. The coefficient
// is nil when fewer than two pairs exist or either side is constant.
func Corr(t *domain.Table, x, y string) (domain.Correlation, error) {
	cx, err := measurable(t, "corr", x)
	if err != nil {
		return domain.Correlation{}, err
	}
	cy, err := measurable(t, "corr", y)
	if err != nil {
		return domain.Correlation{}, err
	}

	xs := make([]float64, 0, t.Rows())
	ys := make([]float64, 0, t.Rows())
	for i := 0; i < t.Rows(); i++ {
		vx, okx := cx.Float(i)
		vy, oky := cy.Float(i)
		if okx && oky {
			xs = append(xs, vx)
			ys = append(ys, vy)
		}
	}

	res := domain.Correlation{X: x, Y: y, Pairs: len(xs)}
	if len(xs) < 2 {
		return res, nil
	}
	r := stat.Correlation(xs, ys, nil)
	if !math.IsNaN(r) && !math.IsInf(r, 0) {
		res.Coefficient = &r
	}
	return res, nil
}

func measurable(t *domain.Table, step, name string) (domain.Column, error) {
	col, ok := t.Column(name)
	if !ok {
		return domain.Column{}, missingColumnError(step, name)
	}
	if col.Kind == domain.KindText {
		return domain.Column{}, invalidRuleError(step, "column %q is text", name)
	}
	return col, nil
}

// timePart extracts a calendar component as a number
func timePart(ts time.Time, part domain.TimePart) float64 {
	switch part {
	case domain.PartYear:
		return float64(ts.Year())
	case domain.PartMonth:
		return float64(ts.Month())
	case domain.PartDay:
		return float64(ts.Day())
	case domain.PartWeekday:
		return float64(ts.Weekday())
	}
	return math.NaN()
}

type keyReader struct {
	name string
	col  domain.Column
	part domain.TimePart
}

func newKeyReader(t *domain.Table, step string, k domain.GroupKey) (keyReader, error) {
	col, ok := t.Column(k.Column)
	if !ok {
		return keyReader{}, missingColumnError(step, k.Column)
	}
	if k.Part != domain.PartNone && col.Kind != domain.KindTimestamp {
		return keyReader{}, invalidRuleError(step, "part %q needs a timestamp column, %q is %s", k.Part, k.Column, col.Kind)
	}
	name := k.As
	if name == "" {
		name = string(k.Part)
	}
	if name == "" {
		name = k.Column
	}
	return keyReader{name: name, col: col, part: k.Part}, nil
}

func (r keyReader) kind() domain.ColumnKind {
	if r.part != domain.PartNone {
		return domain.KindNumeric
	}
	return r.col.Kind
}

// cell turns one frame value into a key component; nil is a missing key
func (r keyReader) cell(v interface{}) (keyCell, bool) {
	switch x := v.(type) {
	case float64:
		return keyCell{kind: domain.KindNumeric, num: x}, true
	case string:
		return keyCell{kind: domain.KindText, text: x}, true
	case time.Time:
		if r.part != domain.PartNone {
			return keyCell{kind: domain.KindNumeric, num: timePart(x, r.part)}, true
		}
		return keyCell{kind: domain.KindTimestamp, time: x}, true
	}
	return keyCell{}, false
}

// GroupBy groups rows by keys and aggregates value columns, like a pivot
// table. Rows with a missing key are left out. Groups are sorted by key.
func GroupBy(ctx context.Context, t *domain.Table, keys []domain.GroupKey, aggs []domain.Aggregation) (*domain.Table, error) {
	if len(keys) == 0 {
		return nil, invalidRuleError("groupby", "at least one key is required")
	}
	readers := make([]keyReader, len(keys))
	for i, k := range keys {
		r, err := newKeyReader(t, "groupby", k)
		if err != nil {
			return nil, err
		}
		readers[i] = r
	}
	if err := checkAggregations(t, "groupby", aggs); err != nil {
		return nil, err
	}

	index := make(map[string]*group)
	var groups []*group
	iterator := t.Frame().ValuesIterator(dataframe.ValuesOptions{InitialRow: 0, Step: 1, DontReadLock: true})
rows:
	for {
		row, vals, _ := iterator(dataframe.SeriesName)
		if row == nil {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := make([]keyCell, len(readers))
		parts := make([]string, len(readers))
		for j, r := range readers {
			cell, ok := r.cell(vals[r.col.Name])
			if !ok {
				continue rows
			}
			key[j] = cell
			parts[j] = cell.encode()
		}
		id := strings.Join(parts, "\x00")
		g, ok := index[id]
		if !ok {
			g = &group{key: key}
			index[id] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, *row)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groupLess(groups[a], groups[b]) })

	columns := make([]domain.Column, 0, len(readers)+len(aggs))
	for j, r := range readers {
		columns = append(columns, keyColumn(r.name, r.kind(), groups, j))
	}
	for _, agg := range aggs {
		col, err := aggregateColumn(ctx, t, agg, groups)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return domain.NewTable(columns...)
}

func keyColumn(name string, kind domain.ColumnKind, groups []*group, j int) domain.Column {
	n := len(groups)
	switch kind {
	case domain.KindNumeric:
		values := make([]float64, n)
		for i, g := range groups {
			values[i] = g.key[j].num
		}
		return domain.NewNumericColumn(name, values, nil)
	case domain.KindTimestamp:
		values := make([]time.Time, n)
		for i, g := range groups {
			values[i] = g.key[j].time
		}
		return domain.NewTimestampColumn(name, values, nil)
	default:
		values := make([]string, n)
		for i, g := range groups {
			values[i] = g.key[j].text
		}
		return domain.NewTextColumn(name, values, nil)
	}
}

func checkAggregations(t *domain.Table, step string, aggs []domain.Aggregation) error {
	seen := make(map[string]bool, len(aggs))
	for _, agg := range aggs {
		col, ok := t.Column(agg.Column)
		if !ok {
			return missingColumnError(step, agg.Column)
		}
		switch agg.Func {
		case domain.AggCount, domain.AggSize:
		case domain.AggMax, domain.AggMin, domain.AggMean, domain.AggSum:
			if col.Kind != domain.KindNumeric {
				return invalidRuleError(step, "%s needs a numeric column, %q is %s", agg.Func, agg.Column, col.Kind)
			}
		default:
			return invalidRuleError(step, "unknown aggregation %q", agg.Func)
		}
		name := aggregateName(agg)
		if seen[name] {
			return invalidRuleError(step, "aggregation %q is listed twice", name)
		}
		seen[name] = true
	}
	return nil
}

// aggregateName names an output column, e.g. Max_Humidity_max
func aggregateName(agg domain.Aggregation) string {
	return agg.Column + "_" + string(agg.Func)
}

func aggregateColumn(ctx context.Context, t *domain.Table, agg domain.Aggregation, groups []*group) (domain.Column, error) {
	col, _ := t.Column(agg.Column)
	values := make([]float64, len(groups))
	valid := make([]bool, len(groups))
	for i, g := range groups {
		v, ok, err := aggregate(ctx, col, g.rows, agg.Func)
		if err != nil {
			return domain.Column{}, err
		}
		values[i], valid[i] = v, ok
	}
	return domain.NewNumericColumn(aggregateName(agg), values, valid), nil
}

// aggregate reduces one group. Sum and mean run on a series of the present
// values so an empty group sums to zero.
func aggregate(ctx context.Context, col domain.Column, rows []int, fn domain.AggFunc) (float64, bool, error) {
	if fn == domain.AggSize {
		return float64(len(rows)), true, nil
	}
	present := make([]float64, 0, len(rows))
	for _, i := range rows {
		if !col.IsMissing(i) {
			present = append(present, col.NumAt(i))
		}
	}
	if fn == domain.AggCount {
		return float64(len(present)), true, nil
	}
	series := dataframe.NewSeriesFloat64(col.Name, nil, present)
	if fn == domain.AggSum {
		sum, err := series.Sum(ctx)
		return sum, err == nil, err
	}
	if len(present) == 0 {
		return 0, false, nil
	}
	switch fn {
	case domain.AggMax:
		return floats.Max(present), true, nil
	case domain.AggMin:
		return floats.Min(present), true, nil
	case domain.AggMean:
		mean, err := series.Mean(ctx)
		return mean, err == nil, err
	}
	return 0, false, nil
}

// periodStart truncates ts to the start of its bin. Weeks start on Monday.
func periodStart(ts time.Time, freq domain.Frequency) time.Time {
	y, m, d := ts.Date()
	loc := ts.Location()
	switch freq {
	case domain.FreqYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, loc)
	case domain.FreqMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case domain.FreqWeek:
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

func nextPeriod(ts time.Time, freq domain.Frequency) time.Time {
	switch freq {
	case domain.FreqYear:
		return ts.AddDate(1, 0, 0)
	case domain.FreqMonth:
		return ts.AddDate(0, 1, 0)
	case domain.FreqWeek:
		return ts.AddDate(0, 0, 7)
	default:
		return ts.AddDate(0, 0, 1)
	}
}

// Resample bins rows by period of a timestamp column and aggregates each
// bin. Every period between the first and last bin appears, empty ones with
// missing aggregates. Bins are labelled by their start.
func Resample(ctx context.Context, t *domain.Table, timeColumn string, freq domain.Frequency, aggs []domain.Aggregation) (*domain.Table, error) {
	switch freq {
	case domain.FreqDay, domain.FreqWeek, domain.FreqMonth, domain.FreqYear:
	default:
		return nil, invalidRuleError("resample", "unknown frequency %q", freq)
	}
	col, ok := t.Column(timeColumn)
	if !ok {
		return nil, missingColumnError("resample", timeColumn)
	}
	if col.Kind != domain.KindTimestamp {
		return nil, invalidRuleError("resample", "column %q is %s, not a timestamp", timeColumn, col.Kind)
	}
	if err := checkAggregations(t, "resample", aggs); err != nil {
		return nil, err
	}

	bins := make(map[int64]*group)
	var first, last time.Time
	for i := 0; i < t.Rows(); i++ {
		if col.IsMissing(i) {
			continue
		}
		start := periodStart(col.TimeAt(i), freq)
		g, ok := bins[start.UnixNano()]
		if !ok {
			g = &group{key: []keyCell{{kind: domain.KindTimestamp, time: start}}}
			bins[start.UnixNano()] = g
		}
		g.rows = append(g.rows, i)
		if first.IsZero() || start.Before(first) {
			first = start
		}
		if last.IsZero() || start.After(last) {
			last = start
		}
	}

	var groups []*group
	if len(bins) > 0 {
		for p := first; !p.After(last); p = nextPeriod(p, freq) {
			g, ok := bins[p.UnixNano()]
			if !ok {
				g = &group{key: []keyCell{{kind: domain.KindTimestamp, time: p}}}
			}
			groups = append(groups, g)
		}
	}

	columns := []domain.Column{keyColumn(timeColumn, domain.KindTimestamp, groups, 0)}
	for _, agg := range aggs {
		agged, err := aggregateColumn(ctx, t, agg, groups)
		if err != nil {
			return nil, err
		}
		columns = append(columns, agged)
	}
	return domain.NewTable(columns...)
}

// Filter keeps rows matching every predicate. Missing cells never match.
func Filter(ctx context.Context, t *domain.Table, preds ...domain.Predicate) (*domain.Table, error) {
	matchers := make(map[string][]func(interface{}) bool, len(preds))
	for _, p := range preds {
		m, err := newMatcher(t, p)
		if err != nil {
			return nil, err
		}
		matchers[p.Column] = append(matchers[p.Column], m)
	}
	if len(matchers) == 0 || t.Width() == 0 {
		return t, nil
	}

	keep := func(vals map[interface{}]interface{}, row, nRows int) (dataframe.FilterAction, error) {
		for name, ms := range matchers {
			for _, m := range ms {
				if !m(vals[name]) {
					return dataframe.DROP, nil
				}
			}
		}
		return dataframe.KEEP, nil
	}
	res, err := dataframe.Filter(ctx, t.Frame(), dataframe.FilterDataFrameFn(keep))
	if err != nil {
		return nil, err
	}
	return domain.FromFrame(ctx, res.(*dataframe.DataFrame))
}

func compareResult(c int, op domain.CompareOp) bool {
	switch op {
	case domain.OpEq:
		return c == 0
	case domain.OpNe:
		return c != 0
	case domain.OpLt:
		return c < 0
	case domain.OpLe:
		return c <= 0
	case domain.OpGt:
		return c > 0
	case domain.OpGe:
		return c >= 0
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func newMatcher(t *domain.Table, p domain.Predicate) (func(interface{}) bool, error) {
	switch p.Op {
	case domain.OpEq, domain.OpNe, domain.OpLt, domain.OpLe, domain.OpGt, domain.OpGe:
	default:
		return nil, invalidRuleError("filter", "unknown operator %q", p.Op)
	}
	col, ok := t.Column(p.Column)
	if !ok {
		return nil, missingColumnError("filter", p.Column)
	}

	if p.Part != domain.PartNone {
		if col.Kind != domain.KindTimestamp {
			return nil, invalidRuleError("filter", "part %q needs a timestamp column, %q is %s", p.Part, p.Column, col.Kind)
		}
		rhs, ok := ParseNumber(p.Value)
		if !ok {
			return nil, invalidRuleError("filter", "value %q is not a number", p.Value)
		}
		return func(v interface{}) bool {
			ts, ok := v.(time.Time)
			return ok && compareResult(cmpFloat(timePart(ts, p.Part), rhs), p.Op)
		}, nil
	}

	switch col.Kind {
	case domain.KindNumeric:
		rhs, ok := ParseNumber(p.Value)
		if !ok {
			return nil, invalidRuleError("filter", "value %q is not a number", p.Value)
		}
		return func(v interface{}) bool {
			x, ok := v.(float64)
			return ok && compareResult(cmpFloat(x, rhs), p.Op)
		}, nil
	case domain.KindTimestamp:
		parser, _ := newTimeParser("")
		rhs, ok := parser.parse(p.Value)
		if !ok {
			return nil, invalidRuleError("filter", "value %q is not a timestamp", p.Value)
		}
		return func(v interface{}) bool {
			ts, ok := v.(time.Time)
			return ok && compareResult(ts.Compare(rhs), p.Op)
		}, nil
	default:
		return func(v interface{}) bool {
			s, ok := v.(string)
			return ok && compareResult(strings.Compare(s, p.Value), p.Op)
		}, nil
	}
}

// ParsePredicate parses a compact filter expression such as
// "EST.year >= 2000" or "latitude > -2".
func ParsePredicate(expr string) (domain.Predicate, error) {
	ops := []domain.CompareOp{domain.OpGe, domain.OpLe, domain.OpEq, domain.OpNe, domain.OpGt, domain.OpLt}
	for _, op := range ops {
		idx := strings.Index(expr, string(op))
		if idx < 0 {
			continue
		}
		lhs := strings.TrimSpace(expr[:idx])
		rhs := strings.TrimSpace(expr[idx+len(op):])
		if strings.ContainsAny(lhs, "<>=!") {
			return domain.Predicate{}, invalidRuleError("filter", "unknown operator in expression %q", expr)
		}
		pred := domain.Predicate{Column: lhs, Op: op, Value: strings.Trim(rhs, `"'`)}
		if dot := strings.LastIndex(lhs, "."); dot > 0 {
			switch part := domain.TimePart(lhs[dot+1:]); part {
			case domain.PartYear, domain.PartMonth, domain.PartDay, domain.PartWeekday:
				pred.Column, pred.Part = lhs[:dot], part
			}
		}
		if pred.Column == "" {
			break
		}
		return pred, nil
	}
	return domain.Predicate{}, invalidRuleError("filter", "cannot parse expression %q", expr)
}
