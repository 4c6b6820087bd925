package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_EmptyInputReturnsEmpty(t *testing.T) {
	assert.Empty(t, ChunkText("", 500, 60))
	assert.Empty(t, ChunkText("   \n\t  ", 500, 60))
}

func TestChunkText_SingleShortSentenceIsOneChunkAtOffsetZero(t *testing.T) {
	chunks := ChunkText("The quick brown fox jumps over the lazy dog.", 500, 60)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Offset)
	assert.Contains(t, chunks[0].Text, "quick brown fox")
}

func TestChunkText_OffsetsAreStrictlyMonotonic(t *testing.T) {
	// Build enough sentences to force multiple chunks well beyond target.
	var b strings.Builder
	for i := 0; i < 400; i++ {
		b.WriteString("This is sentence number filler text for chunk sizing purposes. ")
	}
	chunks := ChunkText(b.String(), 500, 60)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Offset, chunks[i-1].Offset, "chunk %d offset must exceed chunk %d", i, i-1)
	}
}

func TestChunkText_OverlapCarriesTrailingSentenceIntoNextChunk(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("Sentence padding content to exceed the target token budget here. ")
	}
	chunks := ChunkText(b.String(), 500, 60)
	require.Greater(t, len(chunks), 1)

	// The tail of chunk 0 (pre-overlap-selection) should reappear as a
	// prefix of chunk 1's text, since overlap re-includes trailing
	// complete sentences.
	firstWords := strings.Fields(chunks[0].Text)
	tail := strings.Join(firstWords[len(firstWords)-3:], " ")
	assert.Contains(t, chunks[1].Text, tail)
}

func TestChunkText_HardSplitsSentenceExceedingOnePointFiveTimesTarget(t *testing.T) {
	// One giant "sentence" (no terminator) far bigger than 1.5x a tiny target.
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	huge := strings.Join(words, " ") + "."

	chunks := ChunkText(huge, 10, 2)
	require.Greater(t, len(chunks), 1, "an oversized sentence must be split across multiple chunks")
	for _, c := range chunks {
		assert.LessOrEqual(t, estimateTokens(c.Text), int(float64(10)*hardSplitFactor)+2, "chunk exceeds hard-split bound")
	}
}

func TestChunkText_DefaultsAppliedForNonPositiveInputs(t *testing.T) {
	a := ChunkText("hello world.", 0, -1)
	b := ChunkText("hello world.", DefaultOptions().TargetTokens, DefaultOptions().OverlapTokens)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, b[0].Text, a[0].Text)
}

func TestEstimateTokens_CeilsCharsOverFour(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 2, estimateTokens("abcde"))
	assert.Equal(t, 3, estimateTokens("123456789"))
}
