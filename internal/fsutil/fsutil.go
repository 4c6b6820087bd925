// Package fsutil provides the small file-identity helpers the reindex
// planner and ledger need: a cheap change-detection hash and extension
// normalization for compound suffixes and dotfiles.
package fsutil

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// compoundSuffixes are extensions that span two dot-separated segments.
// Checked before the single-segment extension so "tar.gz" wins over a bare
// "gz" match.
var compoundSuffixes = []string{
	"tar.gz", "tar.bz2", "tar.xz", "json.gz", "csv.gz",
}

// FileHash returns a content-change fingerprint for path derived from its
// size and modification time, not its bytes: "path:size:mtime_ms" hashed
// with md5. Cheap enough to run on every scan; a false negative (missed
// change with identical size and mtime) is accepted by the design.
func FileHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("fsutil: stat %s: %w", path, err)
	}
	raw := fmt.Sprintf("%s:%d:%d", path, info.Size(), info.ModTime().UnixMilli())
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:]), nil
}

// FileExtension returns the lower-cased extension of path without its
// leading dot. Recognized compound suffixes (tar.gz, tar.bz2, ...) are
// returned whole. Dotfiles with no further suffix (".gitignore") return
// their name as the extension ("gitignore"). Files with no extension
// return "".
func FileExtension(path string) string {
	base := path
	if idx := strings.LastIndexAny(path, `/\`); idx >= 0 {
		base = path[idx+1:]
	}
	lower := strings.ToLower(base)

	for _, suf := range compoundSuffixes {
		if strings.HasSuffix(lower, "."+suf) {
			return suf
		}
	}

	if !strings.Contains(base, ".") {
		return ""
	}

	if strings.HasPrefix(base, ".") && strings.Count(base, ".") == 1 {
		// Pure dotfile, e.g. ".gitignore" -> "gitignore".
		return strings.ToLower(base[1:])
	}

	dot := strings.LastIndex(lower, ".")
	if dot == len(lower)-1 {
		return "" // trailing dot, e.g. "file."
	}
	return lower[dot+1:]
}

// IsSupported reports whether path's extension appears in exts. exts
// entries are matched case-insensitively and may be given with or without
// a leading dot.
func IsSupported(path string, exts []string) bool {
	ext := FileExtension(path)
	if ext == "" {
		return false
	}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(e, "."))
		if e == ext {
			return true
		}
	}
	return false
}
