// Package services implements the business logic layer between the HTTP
// handlers and the dataset pipeline.
//
// # Available Services
//
//	- DataService: resolves datasets, reads and tweaks them, caches the
//	  tweaked tables and answers describe, pivot, corr and resample queries
//	- OperationService: runs load, tweak and export operations, either
//	  synchronously or through the job queue
//	- HealthService: readiness, liveness and system statistics
//
// # Caching
//
// DataService keeps tweaked tables in a ristretto cache keyed by dataset
// name. The cost of an entry approximates its memory footprint, so the
// configured cache size bounds memory rather than entry count. Entries
// expire after the configured TTL and can be dropped with Invalidate.
//
// # Error Handling
//
// Services return the typed errors of tabtweak/internal/errors and
// tabtweak/internal/operations unchanged. Handlers map them to problem
// details.
//
// # Testing
//
// Tests run against real fixture files written to a temporary directory:
//
//	paths := config.NewPaths(t.TempDir())
//	testutil.WriteDatasetFixtures(t, paths.InputDir)
//	ds, err := NewDataService(config.Default(), paths, logger)
package services
