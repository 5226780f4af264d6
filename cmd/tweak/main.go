package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"tabtweak/internal/config"
	"tabtweak/internal/dataprocessing"
	"tabtweak/internal/exporter"
	"tabtweak/internal/infrastructure"
	"tabtweak/internal/operations"
	"tabtweak/internal/services"
	"tabtweak/pkg/contracts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("tweak failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run reads one dataset, tweaks it and exports the result
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("tweak", flag.ContinueOnError)
	flags.SetOutput(stderr)
	dataset := flags.String("dataset", "nyc", "dataset to tweak")
	input := flags.String("in", "", "input file in the input directory, overriding the dataset source")
	out := flags.String("out", "", "output file, .csv or .xlsx (defaults to <dataset>-clean.csv in the reports directory)")
	fill := flags.String("fill", "", "fill missing cells after tweaking, comma separated column:strategy (mean, ffill, bfill, interpolate, value:<v>)")
	datasets := flags.String("datasets", "", "YAML file with extra dataset definitions")
	bom := flags.Bool("bom", false, "prefix CSV output with a UTF-8 byte order mark")
	cfgPath := flags.String("config", "", "config file (defaults to config.yaml lookup)")
	base := flags.String("base", "", "base directory holding data/ and logs/")
	describe := flags.Bool("describe", false, "print numeric column summaries")
	report := flags.String("report", "", "write numeric column summaries to this CSV file")
	list := flags.Bool("list", false, "list registered datasets and exit")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintln(stdout, contracts.GetFullVersionString(config.AppName+"-tweak"))
		return nil
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
	fillRules, err := parseFillRules(*fill)
	if err != nil {
		return err
	}
	paths, err := cfg.ResolvePaths()
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	logger := infrastructure.NewLogger(stderr, cfg.Logging.Level)
	ds, err := services.NewDataService(cfg, paths, logger)
	if err != nil {
		return err
	}
	defer ds.Close()

	if *list {
		for _, info := range ds.Datasets(ctx) {
			status := "missing"
			if info.Available {
				status = "ready"
			}
			fmt.Fprintf(stdout, "%-12s %-8s %-24s %s\n", info.Name, status, info.Source, info.Description)
		}
		return nil
	}

	spec, err := ds.Dataset(*dataset)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "tweaking dataset",
		slog.String("dataset", spec.Name),
		slog.String("source", spec.Source),
		slog.String("input", *input))

	raw, err := ds.LoadRaw(ctx, spec, *input)
	if err != nil {
		return err
	}
	t, err := ds.Tweak(ctx, spec, raw)
	if err != nil {
		return err
	}
	if len(fillRules) > 0 {
		var stats dataprocessing.FillStatistics
		t, stats, err = dataprocessing.NewFillProcessor(fillRules...).FillWithStats(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "filled %d cells in %d columns\n", stats.CellsFilled, stats.ColumnsProcessed)
	}

	name := *out
	if name == "" {
		name = operations.OperationRequest{Dataset: spec.Name}.OutputName()
	}
	path, err := exporter.NewExporter(paths, logger).Export(name, t, *bom)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d rows, %d columns -> %s\n", spec.Name, t.Rows(), t.Width(), path)

	if !*describe && *report == "" {
		return nil
	}

	summarizer := dataprocessing.NewSummarizer(logger, dataprocessing.DefaultSummarizerConfig())
	desc := summarizer.Describe(ctx, t)
	desc.Dataset = spec.Name
	if *describe {
		fmt.Fprintln(stdout, strings.Join(dataprocessing.FormatDescription(desc), "\n"))
	}
	if *report != "" {
		reportPath := *report
		if filepath.Base(reportPath) == reportPath {
			reportPath = paths.GetReportPath(reportPath)
		}
		if err := summarizer.WriteCSV(ctx, reportPath, desc); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "summary -> %s\n", reportPath)
	}
	return nil
}

// parseFillRules reads "column:strategy,..." where a value fill is
// "column:value:<v>"
func parseFillRules(s string) ([]dataprocessing.FillRule, error) {
	var rules []dataprocessing.FillRule
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		col, rest, ok := strings.Cut(item, ":")
		if !ok || col == "" {
			return nil, fmt.Errorf("fill rule %q wants column:strategy", item)
		}
		strategy, value, _ := strings.Cut(rest, ":")
		rule := dataprocessing.FillRule{Column: col, Strategy: dataprocessing.FillStrategy(strategy), Value: value}
		switch rule.Strategy {
		case dataprocessing.FillMean, dataprocessing.FillForward, dataprocessing.FillBackward, dataprocessing.FillInterpolate:
		case dataprocessing.FillValue:
			if value == "" {
				return nil, fmt.Errorf("fill rule %q needs a value", item)
			}
		default:
			return nil, fmt.Errorf("unknown fill strategy %q in %q", strategy, item)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}
