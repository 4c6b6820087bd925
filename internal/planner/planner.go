// Package planner decides, per watched file, whether it needs (re)indexing.
// It consumes the ledger's cached FileStatus rows plus a fresh file list and
// produces a deterministic Plan the pipeline executes.
package planner

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/localsearch/indexer-core/internal/fsutil"
	"github.com/localsearch/indexer-core/internal/ledger"
	"github.com/localsearch/indexer-core/internal/parserversion"
)

// Reason explains why a path was queued for (re)indexing.
type Reason string

const (
	ReasonNewFile      Reason = "new-file"
	ReasonModified     Reason = "modified"
	ReasonRetryFailed  Reason = "retry-failed"
	ReasonOutdated     Reason = "outdated"
	ReasonForceReindex Reason = "force-reindex"
)

// DefaultRetryIntervalHours is how long a failed/error file sits out before
// it's eligible for another attempt.
const DefaultRetryIntervalHours = 24

// Options configures planning.
type Options struct {
	// SupportedExtensions restricts planning to these extensions (without a
	// leading dot). Empty means "all extensions supported".
	SupportedExtensions []string
	// BundlePatterns are glob-style patterns (matched against the base
	// name) that are skipped when SkipBundles is true.
	BundlePatterns []string
	SkipBundles    bool
	// Queued holds paths already sitting in the in-memory ingestion queue;
	// they are skipped to avoid duplicate work.
	Queued map[string]bool
	// RetryIntervalHours overrides DefaultRetryIntervalHours when > 0.
	RetryIntervalHours int
	Force              bool
}

func (o Options) retryInterval() time.Duration {
	hours := o.RetryIntervalHours
	if hours <= 0 {
		hours = DefaultRetryIntervalHours
	}
	return time.Duration(hours) * time.Hour
}

// Plan is the output of the reindex planner.
type Plan struct {
	FilesToIndex  []string
	FilesToRemove []string
	Reasons       map[string]Reason
	Stats         Stats
}

// Stats summarizes a Plan.
type Stats struct {
	Total    int
	New      int
	Modified int
	Failed   int
	Outdated int
	Skipped  int
}

// Plan computes a full plan: which watched-root files need indexing, and
// which previously-indexed paths have fallen out of the watched set
// entirely and should be removed.
func Plan(watchedRoots, allFiles []string, cache map[string]ledger.FileStatus, opts Options) Plan {
	toIndex, reasons, stats := DetermineFilesToReindex(allFiles, cache, opts)

	allSet := make(map[string]bool, len(allFiles))
	for _, f := range allFiles {
		allSet[f] = true
	}

	var toRemove []string
	for path := range cache {
		if allSet[path] {
			continue
		}
		if underAnyRoot(path, watchedRoots) {
			toRemove = append(toRemove, path)
		}
	}
	sort.Strings(toRemove)

	return Plan{
		FilesToIndex:  toIndex,
		FilesToRemove: toRemove,
		Reasons:       reasons,
		Stats:         stats,
	}
}

// DetermineFilesToReindex applies the per-file decision tree (first match
// wins) and returns the files to queue plus their reasons.
func DetermineFilesToReindex(allFiles []string, cache map[string]ledger.FileStatus, opts Options) ([]string, map[string]Reason, Stats) {
	reasons := make(map[string]Reason)
	seen := make(map[string]bool)
	var toIndex []string
	var stats Stats

	queue := func(path string, reason Reason) {
		if seen[path] {
			return
		}
		seen[path] = true
		toIndex = append(toIndex, path)
		reasons[path] = reason
		stats.Total++
		switch reason {
		case ReasonNewFile:
			stats.New++
		case ReasonModified:
			stats.Modified++
		case ReasonRetryFailed:
			stats.Failed++
		case ReasonOutdated:
			stats.Outdated++
		}
	}

	for _, path := range allFiles {
		if opts.Force {
			queue(path, ReasonForceReindex)
			continue
		}
		if opts.Queued[path] {
			stats.Skipped++
			continue
		}
		if !extensionSupported(path, opts.SupportedExtensions) {
			stats.Skipped++
			continue
		}
		if opts.SkipBundles && matchesAny(filepath.Base(path), opts.BundlePatterns) {
			stats.Skipped++
			continue
		}

		record, ok := cache[path]
		if !ok {
			queue(path, ReasonNewFile)
			continue
		}

		if record.Status == ledger.StatusFailed || record.Status == ledger.StatusError {
			if retryEligible(record.LastRetry, opts.retryInterval()) {
				queue(path, ReasonRetryFailed)
			} else {
				stats.Skipped++
			}
			continue
		}

		if record.Status == ledger.StatusOutdated {
			queue(path, ReasonOutdated)
			continue
		}

		// status == indexed
		if ShouldReindex(path, &record) {
			reason := ReasonModified
			if record.ParserVersion < int(parserversion.GetParserVersion(fsutil.FileExtension(path))) {
				reason = ReasonOutdated
			}
			queue(path, reason)
			continue
		}
		stats.Skipped++
	}

	return toIndex, reasons, stats
}

// ShouldReindex reports whether path needs (re)processing given its ledger
// record (nil meaning "no record", i.e. new).
func ShouldReindex(path string, record *ledger.FileStatus) bool {
	if record == nil {
		return true
	}
	ext := fsutil.FileExtension(path)

	currentVersion := parserversion.GetParserVersion(ext)
	if currentVersion == 0 {
		return false
	}
	if parserversion.PVer(record.ParserVersion) < currentVersion {
		return true
	}

	if record.Status == ledger.StatusFailed || record.Status == ledger.StatusError {
		return retryEligible(record.LastRetry, DefaultRetryIntervalHours*time.Hour)
	}

	if h, err := fsutil.FileHash(path); err == nil && h != record.FileHash {
		return true
	}

	return false
}

// Validate checks a Plan's structural invariants.
func Validate(p Plan) (valid bool, errors []string) {
	if hasDuplicates(p.FilesToIndex) {
		errors = append(errors, "Duplicate files detected in reindex plan")
	}
	if intersects(p.FilesToIndex, p.FilesToRemove) {
		errors = append(errors, "Overlap between index and remove sets")
	}
	return len(errors) == 0, errors
}

func retryEligible(lastRetry string, interval time.Duration) bool {
	if lastRetry == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, lastRetry)
	if err != nil {
		return true
	}
	return time.Since(t) >= interval
}

func extensionSupported(path string, supported []string) bool {
	if len(supported) == 0 {
		return true
	}
	return fsutil.IsSupported(path, supported)
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func underAnyRoot(path string, roots []string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, strings.TrimRight(root, "/")+"/") {
			return true
		}
	}
	return false
}

func hasDuplicates(paths []string) bool {
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			return true
		}
		seen[p] = true
	}
	return false
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, p := range a {
		set[p] = true
	}
	for _, p := range b {
		if set[p] {
			return true
		}
	}
	return false
}
