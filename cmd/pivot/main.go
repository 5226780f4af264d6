package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"tabtweak/internal/config"
	"tabtweak/internal/exporter"
	"tabtweak/internal/infrastructure"
	"tabtweak/internal/services"
	"tabtweak/pkg/contracts"
	"tabtweak/pkg/contracts/domain"
)

// filterFlags collects repeated -where expressions
type filterFlags []string

func (f *filterFlags) String() string { return strings.Join(*f, "; ") }

func (f *filterFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("pivot failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run answers one analytical query over a tweaked dataset: a group-by,
// a resample or a correlation
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("pivot", flag.ContinueOnError)
	flags.SetOutput(stderr)
	dataset := flags.String("dataset", "nyc", "dataset to query")
	by := flags.String("by", "", "group keys, comma separated column[:part], e.g. EST:year,EST:month")
	aggs := flags.String("agg", "", "aggregations, comma separated column:func, e.g. Max_TemperatureF:max")
	var where filterFlags
	flags.Var(&where, "where", "row filter applied before grouping, e.g. 'EST.month == 1' (repeatable)")
	freq := flags.String("resample", "", "resample frequency: day, week, month or year")
	timeCol := flags.String("time", "EST", "timestamp column for -resample")
	corr := flags.String("corr", "", "correlate two columns, x,y")
	out := flags.String("out", "", "export the result to a .csv or .xlsx file instead of printing")
	datasets := flags.String("datasets", "", "YAML file with extra dataset definitions")
	cfgPath := flags.String("config", "", "config file (defaults to config.yaml lookup)")
	base := flags.String("base", "", "base directory holding data/ and logs/")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintln(stdout, contracts.GetFullVersionString(config.AppName+"-pivot"))
		return nil
	}

	modes := 0
	for _, set := range []bool{*by != "", *freq != "", *corr != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("exactly one of -by, -resample or -corr is required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *base != "" {
		cfg.Paths.BaseDir = *base
	}
	if *datasets != "" {
		cfg.Data.DatasetsFile = *datasets
	}
	paths, err := cfg.ResolvePaths()
	if err != nil {
		return err
	}

	logger := infrastructure.NewLogger(stderr, cfg.Logging.Level)
	ds, err := services.NewDataService(cfg, paths, logger)
	if err != nil {
		return err
	}
	defer ds.Close()

	if *corr != "" {
		x, y, ok := strings.Cut(*corr, ",")
		if !ok || x == "" || y == "" {
			return fmt.Errorf("-corr wants x,y, got %q", *corr)
		}
		c, err := ds.Corr(ctx, *dataset, strings.TrimSpace(x), strings.TrimSpace(y))
		if err != nil {
			return err
		}
		coef := "NaN"
		if c.Coefficient != nil {
			coef = fmt.Sprintf("%.6f", *c.Coefficient)
		}
		fmt.Fprintf(stdout, "corr(%s, %s) = %s over %d pairs\n", c.X, c.Y, coef, c.Pairs)
		return nil
	}

	aggregations, err := parseAggs(*aggs)
	if err != nil {
		return err
	}

	var result *domain.Table
	if *freq != "" {
		result, err = ds.Resample(ctx, *dataset, services.ResampleRequest{
			TimeColumn: *timeCol,
			Freq:       domain.Frequency(*freq),
			Aggs:       aggregations,
		})
	} else {
		var keys []domain.GroupKey
		keys, err = parseKeys(*by)
		if err != nil {
			return err
		}
		result, err = ds.Pivot(ctx, *dataset, services.PivotRequest{
			Keys:    keys,
			Aggs:    aggregations,
			Filters: []string(where),
		})
	}
	if err != nil {
		return err
	}

	if *out != "" {
		if err := paths.EnsureDirectories(); err != nil {
			return fmt.Errorf("failed to create directories: %w", err)
		}
		path, err := exporter.NewExporter(paths, logger).Export(*out, result, false)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d rows -> %s\n", result.Rows(), path)
		return nil
	}
	return printTable(stdout, result)
}

// parseKeys reads "column[:part],..." group keys
func parseKeys(s string) ([]domain.GroupKey, error) {
	var keys []domain.GroupKey
	for _, item := range splitList(s) {
		col, part, _ := strings.Cut(item, ":")
		key := domain.GroupKey{Column: col, Part: domain.TimePart(part)}
		switch key.Part {
		case domain.PartNone, domain.PartYear, domain.PartMonth, domain.PartDay, domain.PartWeekday:
		default:
			return nil, fmt.Errorf("unknown time part %q in group key %q", part, item)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, errors.New("at least one group key is required")
	}
	return keys, nil
}

// parseAggs reads "column:func,..." aggregations
func parseAggs(s string) ([]domain.Aggregation, error) {
	var aggs []domain.Aggregation
	for _, item := range splitList(s) {
		col, fn, ok := strings.Cut(item, ":")
		if !ok || col == "" {
			return nil, fmt.Errorf("aggregation %q wants column:func", item)
		}
		agg := domain.Aggregation{Column: col, Func: domain.AggFunc(fn)}
		switch agg.Func {
		case domain.AggMax, domain.AggMin, domain.AggMean, domain.AggSum, domain.AggCount, domain.AggSize:
		default:
			return nil, fmt.Errorf("unknown aggregation %q in %q", fn, item)
		}
		aggs = append(aggs, agg)
	}
	if len(aggs) == 0 {
		return nil, errors.New("at least one aggregation is required")
	}
	return aggs, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func printTable(w io.Writer, t *domain.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Names(), "\t"))
	for i := 0; i < t.Rows(); i++ {
		fmt.Fprintln(tw, strings.Join(t.Record(i), "\t"))
	}
	return tw.Flush()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}
