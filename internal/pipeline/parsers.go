package pipeline

import (
	"os"
	"sync"

	"github.com/localsearch/indexer-core/internal/parserversion"
)

// ParserRegistry maps a file extension to the Parser that handles it. The
// core itself implements none of the real document formats named in §6
// (pdf, doc, docx, rtf, xlsx, xls) — those are external collaborators — but
// it ships a PlainTextParser for txt/md/csv/tsv so the pipeline is runnable
// end to end without an external parser plugged in, and so its own tests
// exercise the full scan -> chunk -> embed -> store path.
type ParserRegistry struct {
	mu      sync.RWMutex
	parsers map[string]parserversion.Parser
}

// NewParserRegistry creates a registry seeded with PlainTextParser for every
// extension it declares.
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{parsers: map[string]parserversion.Parser{}}
	r.Register(&PlainTextParser{})
	return r
}

// Register adds p for every extension it claims to handle, overwriting any
// existing registration for that extension.
func (r *ParserRegistry) Register(p parserversion.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		r.parsers[ext] = p
	}
}

// Lookup returns the parser registered for ext, if any.
func (r *ParserRegistry) Lookup(ext string) (parserversion.Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[ext]
	return p, ok
}

// PlainTextParser handles the extensions that need no real decoding: plain
// text, markdown, and delimiter-separated tables are read verbatim.
// Its ParserVersion is pinned to parserversion's current "txt"/"md"/"csv"/
// "tsv" entries; bumping those in the registry without a matching bump here
// would trip parserversion.CheckVersions.
type PlainTextParser struct{}

const plainTextVersion = parserversion.PVer(1)

// Parse reads path in full. Per the Parser contract (§6) this is
// best-effort: an unreadable file returns ("", nil), never an error used
// for control flow.
func (p *PlainTextParser) Parse(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil
	}
	return string(data), nil
}

// Version implements parserversion.Parser.
func (p *PlainTextParser) Version() parserversion.PVer { return plainTextVersion }

// Extensions implements parserversion.Parser.
func (p *PlainTextParser) Extensions() []string {
	return []string{"txt", "md", "csv", "tsv"}
}
