// Package exporter writes cleaned tables to disk.
//
// CSVWriter streams rows as delimited text, optionally with a UTF-8 BOM
// for Excel. XLSXWriter writes one or more tables into a workbook, keeping
// numeric cells numeric. Exporter picks between them by file extension.
//
// Example usage:
//
//	exp := exporter.NewExporter(paths, logger)
//	out, err := exp.Export("nyc-clean.csv", table, true)
package exporter
