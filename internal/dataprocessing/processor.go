package dataprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"tabtweak/pkg/contracts/domain"
)

// FillProcessor fills missing cells of a cleaned table. Unlike the tweak
// pipeline it changes values, so it runs only when asked for.
type FillProcessor struct {
	rules []FillRule
}

// NewFillProcessor creates a processor applying rules in order
func NewFillProcessor(rules ...FillRule) *FillProcessor {
	return &FillProcessor{rules: rules}
}

// FillStatistics reports what a fill run changed
type FillStatistics struct {
	ColumnsProcessed int            `json:"columns_processed"`
	CellsFilled      int            `json:"cells_filled"`
	StillMissing     map[string]int `json:"still_missing"`
}

// Process implements Processor
func (f *FillProcessor) Process(t *domain.Table) (*domain.Table, error) {
	out, _, err := f.FillWithStats(t)
	return out, err
}

// FillWithStats applies every rule and reports per column results
func (f *FillProcessor) FillWithStats(t *domain.Table) (*domain.Table, FillStatistics, error) {
	stats := FillStatistics{StillMissing: make(map[string]int, len(f.rules))}
	out := t
	for _, rule := range f.rules {
		col, ok := out.Column(rule.Column)
		if !ok {
			return nil, stats, missingColumnError("fill", rule.Column)
		}

		before := col.MissingCount()
		filled, err := fillColumn(col, rule)
		if err != nil {
			return nil, stats, err
		}
		after := filled.MissingCount()

		if out, err = out.With(filled); err != nil {
			return nil, stats, err
		}
		stats.ColumnsProcessed++
		stats.CellsFilled += before - after
		stats.StillMissing[rule.Column] = after
	}
	return out, stats, nil
}

func fillColumn(col domain.Column, rule FillRule) (domain.Column, error) {
	out := col.Clone()
	switch rule.Strategy {
	case FillForward:
		forwardFill(out, rule.Limit)
	case FillBackward:
		backwardFill(out, rule.Limit)
	case FillMean:
		if col.Kind != domain.KindNumeric {
			return domain.Column{}, invalidRuleError("fill", "mean fill needs a numeric column, %q is %s", col.Name, col.Kind)
		}
		values := presentValues(col)
		if len(values) == 0 {
			return out, nil
		}
		mean := stat.Mean(values, nil)
		for i := 0; i < out.Len(); i++ {
			if out.IsMissing(i) {
				out.Set(i, mean)
			}
		}
	case FillInterpolate:
		if col.Kind != domain.KindNumeric {
			return domain.Column{}, invalidRuleError("fill", "interpolation needs a numeric column, %q is %s", col.Name, col.Kind)
		}
		interpolate(out)
	case FillValue:
		if err := fillConstant(out, rule.Value); err != nil {
			return domain.Column{}, err
		}
	default:
		return domain.Column{}, invalidRuleError("fill", "unknown strategy %q", rule.Strategy)
	}
	return out, nil
}

func forwardFill(c domain.Column, limit int) {
	last, run := -1, 0
	for i := 0; i < c.Len(); i++ {
		if !c.IsMissing(i) {
			last, run = i, 0
			continue
		}
		if last < 0 || (limit > 0 && run >= limit) {
			continue
		}
		c.Set(i, c.Value(last))
		run++
	}
}

func backwardFill(c domain.Column, limit int) {
	next, run := -1, 0
	for i := c.Len() - 1; i >= 0; i-- {
		if !c.IsMissing(i) {
			next, run = i, 0
			continue
		}
		if next < 0 || (limit > 0 && run >= limit) {
			continue
		}
		c.Set(i, c.Value(next))
		run++
	}
}

// interpolate fills interior gaps linearly by position. Trailing gaps take
// the last present value; leading gaps stay missing.
func interpolate(c domain.Column) {
	prev := -1
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			lo, hi := c.NumAt(prev), c.NumAt(i)
			step := (hi - lo) / float64(i-prev)
			for k := prev + 1; k < i; k++ {
				c.Set(k, lo+step*float64(k-prev))
			}
		}
		prev = i
	}
	if prev >= 0 {
		last := c.NumAt(prev)
		for k := prev + 1; k < c.Len(); k++ {
			c.Set(k, last)
		}
	}
}

func fillConstant(c domain.Column, value string) error {
	var cell any = value
	switch c.Kind {
	case domain.KindNumeric:
		v, ok := ParseNumber(value)
		if !ok {
			return invalidRuleError("fill", "value %q is not numeric but column %q is", value, c.Name)
		}
		cell = v
	case domain.KindTimestamp:
		return invalidRuleError("fill", "constant fill is not supported for timestamp column %q", c.Name)
	}
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			c.Set(i, cell)
		}
	}
	return nil
}

func presentValues(c domain.Column) []float64 {
	values := make([]float64, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Float(i); ok {
			values = append(values, v)
		}
	}
	return values
}

// String renders the statistics on one line
func (s FillStatistics) String() string {
	return fmt.Sprintf("%d columns, %d cells filled", s.ColumnsProcessed, s.CellsFilled)
}
