// Package chunker splits extracted document text into overlapping,
// sentence-aware chunks sized for a downstream embedding model's token
// window. It is a pure function over text: no file I/O, no state.
package chunker

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk is a slice of source text produced by ChunkText.
type Chunk struct {
	// Text is the chunk's full content, including any overlap prefix
	// carried over from the previous chunk.
	Text string
	// Offset is the byte offset in the original text where this chunk's
	// unique (non-overlap) content begins. Strictly increasing across the
	// sequence ChunkText returns.
	Offset int
}

// Options controls chunking behaviour.
type Options struct {
	// TargetTokens is the estimated-token size a chunk is built up to.
	TargetTokens int
	// OverlapTokens is the estimated-token budget of trailing sentences
	// carried from chunk i into chunk i+1.
	OverlapTokens int
}

// DefaultOptions matches the spec's documented defaults.
func DefaultOptions() Options {
	return Options{TargetTokens: 500, OverlapTokens: 60}
}

// hardSplitFactor bounds a single chunk (or a single oversized sentence) at
// 1.5x the target token estimate.
const hardSplitFactor = 1.5

// sentenceTerminators are the boundary characters recognized by the
// sentence-splitting heuristic (ASCII and common CJK full-width forms).
var sentenceTerminators = map[rune]bool{
	'.': true, '?': true, '!': true,
	'。': true, '？': true, '！': true, '．': true,
}

// unit is an indivisible piece of text (normally a whole sentence, or a
// single word when a sentence was hard-split) carrying its byte offset in
// the original text.
type unit struct {
	text   string
	offset int
}

// ChunkText splits text into overlapping chunks. Empty (or all-whitespace)
// input returns nil. Sentences are never split across chunks unless a
// single sentence exceeds 1.5x targetTokens, in which case it is hard-split
// on whitespace.
func ChunkText(text string, targetTokens, overlapTokens int) []Chunk {
	if targetTokens <= 0 {
		targetTokens = DefaultOptions().TargetTokens
	}
	if overlapTokens < 0 {
		overlapTokens = DefaultOptions().OverlapTokens
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	units := buildUnits(text, targetTokens)
	if len(units) == 0 {
		return nil
	}

	maxTokens := int(math.Ceil(float64(targetTokens) * hardSplitFactor))

	var chunks []Chunk
	var current []unit
	var previous []unit // units of the last emitted chunk, source of the next overlap
	currentTokens := 0
	nextIdx := 0 // first unit not yet emitted as "new" content

	flush := func() {
		if len(current) == 0 {
			return
		}
		overlap := selectOverlap(previous, overlapTokens)
		var b strings.Builder
		for _, u := range overlap {
			b.WriteString(u.text)
		}
		for _, u := range current {
			b.WriteString(u.text)
		}
		chunks = append(chunks, Chunk{Text: b.String(), Offset: current[0].offset})
		previous = current
		current = nil
		currentTokens = 0
	}

	for nextIdx < len(units) {
		u := units[nextIdx]
		t := estimateTokens(u.text)

		if len(current) > 0 && currentTokens+t > maxTokens {
			flush()
			continue // re-evaluate same unit against a fresh chunk
		}

		current = append(current, u)
		currentTokens += t
		nextIdx++

		if currentTokens >= targetTokens {
			flush()
		}
	}
	flush()

	return chunks
}

// selectOverlap picks the trailing units of a just-finished chunk whose
// cumulative estimated token length first reaches overlapTokens, walking
// backward from the end. Returns them in original (forward) order.
func selectOverlap(finished []unit, overlapTokens int) []unit {
	if overlapTokens <= 0 {
		return nil
	}
	var picked []unit
	sum := 0
	for i := len(finished) - 1; i >= 0; i-- {
		picked = append([]unit{finished[i]}, picked...)
		sum += estimateTokens(finished[i].text)
		if sum >= overlapTokens {
			break
		}
	}
	return picked
}

// estimateTokens is the contract-level token estimator: ceil(chars/4).
func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return int(math.Ceil(float64(n) / 4))
}

// buildUnits splits text into sentence units, further hard-splitting on
// whitespace any sentence whose estimated tokens exceed 1.5x targetTokens.
func buildUnits(text string, targetTokens int) []unit {
	maxTokens := int(math.Ceil(float64(targetTokens) * hardSplitFactor))

	var units []unit
	for _, s := range splitSentences(text) {
		if estimateTokens(s.text) <= maxTokens {
			units = append(units, s)
			continue
		}
		units = append(units, splitWords(s.text, s.offset)...)
	}
	return units
}

// splitSentences scans text for sentence boundaries: a terminator
// (., ?, !, 。, ？, ！, ．) immediately followed by whitespace or
// end-of-text. Returns sentences with leading/trailing whitespace trimmed
// from the text but offsets pointing at the first non-space rune.
func splitSentences(text string) []unit {
	var out []unit
	start := 0 // byte offset of current sentence's untrimmed start

	runes := []rune(text)
	byteOffsets := make([]int, len(runes)+1)
	{
		b := 0
		for i, r := range runes {
			byteOffsets[i] = b
			b += utf8.RuneLen(r)
		}
		byteOffsets[len(runes)] = b
	}

	// spanEnd extends past endByte over the whitespace rune that ended the
	// sentence, so trailingSpace can see it.
	emit := func(endByte, spanEnd int) {
		raw := text[start:endByte]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			start = endByte
			return
		}
		leading := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
		out = append(out, unit{text: trimmed + trailingSpace(text[start:spanEnd]), offset: start + leading})
		start = endByte
	}

	for i, r := range runes {
		if !sentenceTerminators[r] {
			continue
		}
		end := byteOffsets[i+1]
		atEOF := i+1 >= len(runes)
		nextIsSpace := !atEOF && unicode.IsSpace(runes[i+1])
		if atEOF {
			emit(end, end)
		} else if nextIsSpace {
			emit(end, byteOffsets[i+2])
		}
	}
	if start < len(text) {
		emit(len(text), len(text))
	}

	// Re-normalize: ChunkText concatenates unit.text directly, so each unit
	// should carry exactly one trailing space (added above) to keep
	// sentences from gluing together, except the very last unit.
	return out
}

// trailingSpace returns a single trailing space if raw ends in whitespace
// after its trimmed content, so joined sentence units stay readable.
func trailingSpace(raw string) string {
	if strings.TrimRightFunc(raw, unicode.IsSpace) != raw {
		return " "
	}
	return ""
}

// splitWords hard-splits an oversized sentence into whitespace-delimited
// units, each carrying its absolute byte offset in the original text.
// baseOffset is the offset of sentenceText within the original document.
func splitWords(sentenceText string, baseOffset int) []unit {
	var out []unit
	start := -1
	for i, r := range sentenceText {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, unit{
					text:   sentenceText[start:i] + " ",
					offset: baseOffset + start,
				})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, unit{text: sentenceText[start:], offset: baseOffset + start})
	}
	return out
}
