package parserversion

// Parser is the contract every document-format parser must satisfy. The core
// never implements Parser itself — concrete parsers (pdf, docx, ...) are
// external collaborators — but it type-checks against this interface when
// wiring a parser into the pipeline, and enforces the invariant that each
// parser's declared version matches the registry.
type Parser interface {
	// Parse extracts text from path. It is best-effort: unreadable or
	// corrupt input returns ("", nil), never an error used for control flow.
	Parse(path string) (string, error)

	// Version returns the parser's own version constant. Callers should
	// assert this equals GetParserVersion(ext) for the extensions the
	// parser claims to handle.
	Version() PVer

	// Extensions lists the file extensions (without a leading dot, lower
	// case) this parser handles.
	Extensions() []string
}

// CheckVersions verifies that p.Version() matches the registry's current
// version for every extension p claims to handle. It returns the list of
// extensions for which the parser is stale (lower than the registry) or
// ahead of it (higher than the registry, likely a registry bump was missed).
func CheckVersions(p Parser) (mismatched []string) {
	v := p.Version()
	for _, ext := range p.Extensions() {
		if GetParserVersion(ext) != v {
			mismatched = append(mismatched, ext)
		}
	}
	return mismatched
}
