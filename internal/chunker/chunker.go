// Package chunker splits raw text into overlapping fixed-size segments for
// embedding. Splitting is by character count, not semantic boundaries: the
// embedding step has a token budget and determinism matters more than perfect
// boundary placement.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSize is the default chunk length in runes.
	DefaultSize = 1400
	// DefaultOverlap is the default number of runes shared by neighboring chunks.
	DefaultOverlap = 200
)

// Chunker produces sliding-window chunks. Each chunk after the first starts
// at previousEnd - Overlap, so the window advances at least Size - Overlap
// runes per step and termination is guaranteed as long as Overlap < Size.
type Chunker struct {
	Size    int
	Overlap int
}

// New creates a Chunker, falling back to the defaults for non-positive sizes
// or an overlap that would prevent the window from advancing.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Chunk splits text into overlapping segments. Empty or whitespace-only input
// yields no chunks and therefore no embedding calls.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	// Operate on runes so multi-byte input cannot be split mid-character.
	runes := []rune(text)
	if len(runes) <= c.Size {
		return []string{text}
	}

	step := c.Size - c.Overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Reassemble undoes the overlap and concatenates chunks back into the
// original text. It is the inverse of Chunk for any non-empty input.
func (c *Chunker) Reassemble(chunks []string) string {
	var sb strings.Builder
	for i, chunk := range chunks {
		if i == 0 {
			sb.WriteString(chunk)
			continue
		}
		runes := []rune(chunk)
		overlap := c.Overlap
		if overlap > len(runes) {
			overlap = len(runes)
		}
		sb.WriteString(string(runes[overlap:]))
	}
	return sb.String()
}

// RuneLen reports the length of text in runes, the unit the chunker works in.
func RuneLen(text string) int {
	return utf8.RuneCountInString(text)
}
