// Package shared provides common test helpers used across the tabtweak codebase.
//
// # Test Utilities
//
// The testutil subpackage provides:
//
//   - BufferedSlogHandler for asserting on structured log output
//   - sample extracts of the NYC weather and TAO buoy datasets
//   - fixture writers for plain and gzip-compressed files
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    logger, handler := testutil.NewTestLogger(t)
//	    dir := t.TempDir()
//	    testutil.WriteDatasetFixtures(t, dir)
//	    ...
//	    testutil.AssertNoErrors(t, handler)
//	}
package shared
