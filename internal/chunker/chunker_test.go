package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmptyInput(t *testing.T) {
	c := New(100, 20)

	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t  "))
}

func TestChunkShortInputSingleChunk(t *testing.T) {
	c := New(100, 20)

	chunks := c.Chunk("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestChunkRoundTrip(t *testing.T) {
	c := New(50, 10)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 40)

	chunks := c.Chunk(text)
	require.GreaterOrEqual(t, len(chunks), 1)
	assert.Equal(t, text, c.Reassemble(chunks))
}

func TestChunkRoundTripMultiByte(t *testing.T) {
	c := New(30, 5)
	text := strings.Repeat("héllo wörld — 你好世界 ", 25)

	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, text, c.Reassemble(chunks))
}

func TestChunkOverlapShared(t *testing.T) {
	c := New(20, 5)
	text := strings.Repeat("abcdefghij", 10)

	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		// Each chunk repeats the tail of its predecessor.
		assert.Equal(t, string(prev[len(prev)-5:]), string(cur[:5]))
	}
}

func TestChunkSizesBounded(t *testing.T) {
	c := New(64, 16)
	text := strings.Repeat("x", 1000)

	for _, chunk := range c.Chunk(text) {
		assert.LessOrEqual(t, RuneLen(chunk), 64)
	}
}

func TestChunkTerminatesOnDegenerateConfig(t *testing.T) {
	// An overlap >= size would stall the window; New must correct it.
	c := New(10, 10)
	require.Less(t, c.Overlap, c.Size)

	chunks := c.Chunk(strings.Repeat("y", 500))
	assert.NotEmpty(t, chunks)
	assert.Equal(t, strings.Repeat("y", 500), c.Reassemble(chunks))
}
