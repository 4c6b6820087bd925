// Package parserversion holds the static extension-to-parser-version table that
// drives incremental reindexing. Bumping a version here is the only supported
// way to force every file of that extension through the planner's
// outdated-by-parser-version path.
package parserversion

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

// PVer is a non-negative parser version. Zero means "unknown / pre-tracking".
type PVer int

//go:embed changelog.yaml
var changelogYAML []byte

// versions is the current parser version per lower-cased extension (without
// the leading dot). It is populated once at init time and never mutated.
var versions = map[string]PVer{
	"pdf":  3,
	"doc":  2,
	"docx": 2,
	"txt":  1,
	"md":   1,
	"rtf":  2,
	"xlsx": 2,
	"xls":  2,
	"csv":  1,
	"tsv":  1,
}

// history holds, per extension, a map from version to a human-readable
// changelog description. Loaded from the embedded YAML file so changelog
// prose can be edited without touching Go source.
var history map[string]map[PVer]string

func init() {
	var raw map[string]map[int]string
	if err := yaml.Unmarshal(changelogYAML, &raw); err != nil {
		history = map[string]map[PVer]string{}
		return
	}
	history = make(map[string]map[PVer]string, len(raw))
	for ext, versionsForExt := range raw {
		converted := make(map[PVer]string, len(versionsForExt))
		for v, desc := range versionsForExt {
			converted[PVer(v)] = desc
		}
		history[ext] = converted
	}
}

// GetParserVersion returns the current parser version for ext, which may be
// supplied with or without a leading dot. Unknown extensions return 0.
// Lookup is case-insensitive.
func GetParserVersion(ext string) PVer {
	ext = normalize(ext)
	return versions[ext]
}

// GetVersionHistory returns the version->description map for ext, and false
// if no history is recorded for that extension.
func GetVersionHistory(ext string) (map[PVer]string, bool) {
	ext = normalize(ext)
	h, ok := history[ext]
	return h, ok
}

// Supported returns every extension (without a dot) that has a registered
// parser version.
func Supported() []string {
	out := make([]string, 0, len(versions))
	for ext := range versions {
		out = append(out, ext)
	}
	return out
}

func normalize(ext string) string {
	ext = strings.ToLower(ext)
	return strings.TrimPrefix(ext, ".")
}
