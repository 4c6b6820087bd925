// Package scanner discovers indexable files under watched roots, honoring
// gitignore-style exclude patterns and the configured set of supported
// extensions, producing the all_files list the reindex planner consumes.
package scanner

import "time"

// FileInfo describes one discovered file.
type FileInfo struct {
	// Path is relative to the watched root passed to Scan.
	Path string
	// AbsPath is the absolute filesystem path.
	AbsPath string
	Size    int64
	ModTime time.Time
}

// ScanResult is streamed from Scan's output channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// Options configures a scan.
type Options struct {
	// RootDir is the watched root directory to scan.
	RootDir string

	// ExcludePatterns are gitignore-syntax patterns (settings.excludePatterns
	// in config.json, §6) to skip.
	ExcludePatterns []string

	// SupportedExtensions restricts results to these extensions (without a
	// leading dot, case-insensitive). Empty means every extension.
	SupportedExtensions []string

	// MaxFileSize is the maximum file size to include, in bytes. 0 uses
	// DefaultMaxFileSize.
	MaxFileSize int64

	// Workers sizes the results channel buffer (Workers*10). 0 uses
	// runtime.NumCPU(). The walk itself runs on a single goroutine.
	Workers int

	// DataDir is the index's own on-disk directory, always excluded so the
	// scanner never re-indexes its own ledger/vector files.
	DataDir string
}

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024
