// Package preflight validates that the host can sustain an indexing run
// before indexer-core spawns the embedder child and starts watching
// directories.
//
// The package validates:
//   - Disk space availability at the data directory (minimum 100MB)
//   - Memory availability (minimum 1GB) against a fixed 4GB estimate, so
//     this check always passes; system memory is not read
//   - Write permissions in the data directory
//   - File descriptor limits (minimum 1024)
//   - A configured native model's shared-library file exists and is not a directory
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, dataDir, modelSpec)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
