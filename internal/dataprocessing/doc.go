// Package dataprocessing reads loosely typed tabular files, tweaks them into
// clean typed tables and answers descriptive questions about the result.
//
// # Architecture
//
// The package is organized into three main components:
//
// 1. Reader: materializes CSV, space separated, gzipped or .xlsx input into a domain.Table
// 2. Pipeline: normalize names, recode sentinels, coerce types, derive columns, drop columns
// 3. Analytics: describe, quantiles, correlation, group-by pivots, resampling and filters
//
// # Usage
//
// Reading and tweaking a preset dataset:
//
//	spec, _ := dataprocessing.Preset("nyc")
//	raw, err := dataprocessing.ReadFile(ctx, "central-park-raw.csv", spec.Read)
//	if err != nil {
//	    return err
//	}
//	clean, err := dataprocessing.Tweak(ctx, raw, spec.Tweak)
//
// Pivoting by year and month:
//
//	pivot, err := dataprocessing.GroupBy(ctx, clean,
//	    []domain.GroupKey{{Column: "EST", Part: domain.PartYear}, {Column: "EST", Part: domain.PartMonth}},
//	    []domain.Aggregation{{Column: "Max_TemperatureF", Func: domain.AggMax}})
//
// # Data Flow
//
//	File → Reader → raw Table → Pipeline → clean Table → Analytics / Exporter
//
// # Error Handling
//
// Configuration problems (a rule naming an absent column, two raw names that
// normalize to the same identifier, an impossible rule) fail the whole call
// with an errors.AppError of type CONFIG wrapping ErrMissingColumn,
// ErrColumnCollision or ErrInvalidRule. Individual cells that cannot be
// parsed never fail a call; they become missing.
package dataprocessing
