package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVisionResponseThreeSections(t *testing.T) {
	response := `EXTRACTED_TEXT:
Invoice #42
Total: $100

IMAGE_DESCRIPTION:
A scanned invoice on white paper.

ANALYSIS:
Standard invoice layout with a line-item table.`

	text, description := ParseVisionResponse(response)
	assert.Equal(t, "Invoice #42\nTotal: $100", text)
	assert.Equal(t, "A scanned invoice on white paper.", description)
}

func TestParseVisionResponseNoMarkers(t *testing.T) {
	text, description := ParseVisionResponse("just a paragraph the model wrote")
	assert.Equal(t, "just a paragraph the model wrote", text)
	assert.Empty(t, description)
}

func TestParseVisionResponseNoTextDetected(t *testing.T) {
	response := `EXTRACTED_TEXT:
No text detected.

IMAGE_DESCRIPTION:
A photo of a sunset.

ANALYSIS:
Nothing notable.`

	text, description := ParseVisionResponse(response)
	assert.Empty(t, text)
	assert.Equal(t, "A photo of a sunset.", description)
}

func TestRegistryPlainText(t *testing.T) {
	r := NewRegistry(nil)

	result, err := r.Extract(context.Background(), []byte("plain contents here"), "notes.txt")
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, "plain contents here", result.Text)
}

func TestRegistryHTMLToMarkdown(t *testing.T) {
	r := NewRegistry(nil)

	html := "<html><body><h1>Title</h1><p>Some <strong>bold</strong> text.</p></body></html>"
	result, err := r.Extract(context.Background(), []byte(html), "page.html")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Title")
	assert.Contains(t, result.Text, "**bold**")
}

func TestRegistryUnsupportedTypeSkips(t *testing.T) {
	r := NewRegistry(nil)

	// An MP3 header: not a supported document type.
	data := append([]byte("ID3"), make([]byte, 64)...)
	result, err := r.Extract(context.Background(), data, "song.mp3")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, result.Text)
}
