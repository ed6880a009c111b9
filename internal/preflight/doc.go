// Package preflight provides system validation and pre-flight checks
// to ensure the codegraph indexer can run successfully before starting operations.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory availability (minimum 1GB, compared against a fixed 4GB
//     estimate; system memory is not queried)
//   - Write permissions in project directory
//   - File descriptor limits (minimum 1024)
//   - Embedder availability and disk space for the embedding model
//     (non-critical)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, "/path/to/project")
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
