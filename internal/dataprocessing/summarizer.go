package dataprocessing

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tabtweak/internal/errors"
	"tabtweak/pkg/contracts/domain"
)

// Summarizer produces descriptive statistics for cleaned tables
type Summarizer struct {
	logger         *slog.Logger
	includeTimes   bool
	floatPrecision int
	now            func() time.Time
}

// SummarizerConfig holds configuration options for the Summarizer.
type SummarizerConfig struct {
	IncludeTimestamps bool // Summarize timestamp columns as Unix seconds
	FloatPrecision    int  // Digits after the point in CSV output; -1 for shortest
}

// DefaultSummarizerConfig returns the default summarizer configuration
func DefaultSummarizerConfig() SummarizerConfig {
	return SummarizerConfig{FloatPrecision: 6}
}

// NewSummarizer creates a summarizer
func NewSummarizer(logger *slog.Logger, config SummarizerConfig) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.FloatPrecision == 0 {
		config.FloatPrecision = 6
	}
	return &Summarizer{
		logger:         logger.With(slog.String("component", "summarizer")),
		includeTimes:   config.IncludeTimestamps,
		floatPrecision: config.FloatPrecision,
		now:            time.Now,
	}
}

// Describe computes count, mean, std, min, quartiles and max for every
// numeric column. Missing cells are skipped.
func (s *Summarizer) Describe(ctx context.Context, t *domain.Table) domain.TableDescription {
	desc := domain.TableDescription{
		Rows:        t.Rows(),
		Columns:     make([]domain.ColumnSummary, 0, t.Width()),
		GeneratedAt: s.now().UTC(),
	}
	for _, col := range t.Columns() {
		if col.Kind == domain.KindText || (col.Kind == domain.KindTimestamp && !s.includeTimes) {
			continue
		}
		desc.Columns = append(desc.Columns, SummarizeColumn(col))
	}

	s.logger.DebugContext(ctx, "table described",
		slog.Int("rows", desc.Rows),
		slog.Int("columns", len(desc.Columns)))
	return desc
}

// SummarizeColumn describes one numeric or timestamp column
func SummarizeColumn(col domain.Column) domain.ColumnSummary {
	values := presentValues(col)
	summary := domain.ColumnSummary{Column: col.Name, Kind: string(col.Kind), Count: len(values)}
	if len(values) == 0 {
		return summary
	}

	sort.Float64s(values)
	mean, std := stat.MeanStdDev(values, nil)
	summary.Mean = &mean
	if len(values) > 1 {
		summary.Std = &std
	}
	lo, hi := floats.Min(values), floats.Max(values)
	summary.Min = &lo
	summary.Max = &hi

	p25, p50, p75 := quantileSorted(values, 0.25), quantileSorted(values, 0.5), quantileSorted(values, 0.75)
	summary.P25, summary.P50, summary.P75 = &p25, &p50, &p75
	return summary
}

// Quantile returns the q-th quantiles of a column using linear interpolation
// between closest ranks. Missing cells are skipped; ok is false when the
// column has no present values.
func Quantile(col domain.Column, qs ...float64) ([]float64, bool, error) {
	if col.Kind == domain.KindText {
		return nil, false, invalidRuleError("quantile", "column %q is text", col.Name)
	}
	for _, q := range qs {
		if q < 0 || q > 1 || math.IsNaN(q) {
			return nil, false, invalidRuleError("quantile", "quantile %v outside [0, 1]", q)
		}
	}
	values := presentValues(col)
	if len(values) == 0 {
		return nil, false, nil
	}
	sort.Float64s(values)
	out := make([]float64, len(qs))
	for i, q := range qs {
		out[i] = quantileSorted(values, q)
	}
	return out, true, nil
}

// quantileSorted interpolates between order statistics at h = (n-1)q
func quantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * q
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// WriteCSV writes a description with one row per column
func (s *Summarizer) WriteCSV(ctx context.Context, path string, desc domain.TableDescription) error {
	s.logger.InfoContext(ctx, "writing description to CSV",
		slog.String("path", path),
		slog.Int("column_count", len(desc.Columns)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewStorageError("failed to create directory for CSV output", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.NewStorageError("failed to create CSV file for description", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"column", "count", "mean", "std", "min", "25%", "50%", "75%", "max"}
	if err := writer.Write(header); err != nil {
		return errors.NewStorageError("failed to write CSV header row", err)
	}

	for _, c := range desc.Columns {
		row := []string{
			c.Column,
			strconv.Itoa(c.Count),
			s.formatStat(c.Mean),
			s.formatStat(c.Std),
			s.formatStat(c.Min),
			s.formatStat(c.P25),
			s.formatStat(c.P50),
			s.formatStat(c.P75),
			s.formatStat(c.Max),
		}
		if err := writer.Write(row); err != nil {
			return errors.NewStorageError("failed to write CSV data row", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.NewStorageError("failed to flush CSV output", err)
	}
	return nil
}

// WriteJSON writes a description as indented JSON
func (s *Summarizer) WriteJSON(ctx context.Context, path string, desc domain.TableDescription) error {
	s.logger.InfoContext(ctx, "writing description to JSON", slog.String("path", path))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewStorageError("failed to create directory for JSON output", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.NewStorageError("failed to create JSON file for description", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(desc); err != nil {
		return errors.NewStorageError("failed to encode description to JSON", err)
	}
	return nil
}

func (s *Summarizer) formatStat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', s.floatPrecision, 64)
}

// formatSummary renders a summary on one line
func formatSummary(c domain.ColumnSummary) string {
	f := func(v *float64) string {
		if v == nil {
			return "NaN"
		}
		return strconv.FormatFloat(*v, 'g', 6, 64)
	}
	return fmt.Sprintf("%-24s count=%-6d mean=%-10s std=%-10s min=%-10s 50%%=%-10s max=%s",
		c.Column, c.Count, f(c.Mean), f(c.Std), f(c.Min), f(c.P50), f(c.Max))
}

// FormatDescription renders a description as aligned text lines
func FormatDescription(desc domain.TableDescription) []string {
	lines := make([]string, 0, len(desc.Columns))
	for _, c := range desc.Columns {
		lines = append(lines, formatSummary(c))
	}
	return lines
}
