package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/localsearch/indexer-core/internal/fsutil"
	"github.com/localsearch/indexer-core/internal/gitignore"
)

// gitignoreCacheSize bounds the number of compiled exclude-pattern matchers
// cached per root, preventing unbounded growth in a long-running watch.
const gitignoreCacheSize = 64

// Scanner discovers indexable files under a watched root.
type Scanner struct {
	matcherCache *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, err
	}
	return &Scanner{matcherCache: cache}, nil
}

// Scan walks opts.RootDir and streams matching files on the returned
// channel, which is closed when the walk completes (or ctx is cancelled).
func (s *Scanner) Scan(ctx context.Context, opts Options) (<-chan ScanResult, error) {
	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	matcher := s.matcherFor(absRoot, opts.ExcludePatterns)

	results := make(chan ScanResult, workers*10)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, matcher, maxFileSize, results)
	}()

	return results, nil
}

func (s *Scanner) matcherFor(absRoot string, patterns []string) *gitignore.Matcher {
	key := absRoot + "|" + strings.Join(patterns, ",")
	if m, ok := s.matcherCache.Get(key); ok {
		return m
	}
	m := gitignore.New()
	for _, p := range patterns {
		m.AddPattern(p)
	}
	s.matcherCache.Add(key, m)
	return m
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts Options, matcher *gitignore.Matcher, maxFileSize int64, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil // skip entries we can't access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if s.isOwnDataDir(relPath, opts.DataDir) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if matcher.Match(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if matcher.Match(relPath, false) {
			return nil
		}
		if len(opts.SupportedExtensions) > 0 && !fsutil.IsSupported(relPath, opts.SupportedExtensions) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxFileSize {
			return nil
		}

		select {
		case results <- ScanResult{File: &FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

func (s *Scanner) isOwnDataDir(relPath, dataDir string) bool {
	if dataDir == "" {
		return false
	}
	return relPath == dataDir || strings.HasPrefix(relPath, dataDir+"/")
}

// AllFiles drains Scan into a plain slice of paths relative to opts.RootDir.
// The pipeline driver does not use it: it builds the planner's all_files
// input from each FileInfo.AbsPath instead.
func (s *Scanner) AllFiles(ctx context.Context, opts Options) ([]string, error) {
	results, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		paths []string
		first error
	)
	for r := range results {
		if r.Error != nil {
			mu.Lock()
			if first == nil {
				first = r.Error
			}
			mu.Unlock()
			continue
		}
		paths = append(paths, r.File.Path)
	}
	return paths, first
}
