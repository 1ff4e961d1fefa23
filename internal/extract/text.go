package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"aide/internal/errs"
)

// HTMLExtractor converts HTML uploads to markdown so markup does not pollute
// the embedded text.
type HTMLExtractor struct{}

// NewHTMLExtractor creates an HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (e *HTMLExtractor) AcceptedExtensions() []string {
	return []string{".html", ".htm"}
}

func (e *HTMLExtractor) AcceptedMimeTypes() []string {
	return []string{"text/html"}
}

func (e *HTMLExtractor) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	markdown, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return nil, &errs.ExtractionError{Filename: filename, Err: fmt.Errorf("failed to convert html: %w", err)}
	}
	return &Result{Text: markdown}, nil
}

var _ Extractor = (*HTMLExtractor)(nil)

// TextExtractor reads plain and code text as-is.
type TextExtractor struct{}

// NewTextExtractor creates a TextExtractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (e *TextExtractor) AcceptedExtensions() []string {
	return []string{
		".txt", ".md", ".markdown", ".csv", ".json", ".yaml", ".yml",
		".go", ".py", ".js", ".ts", ".java", ".c", ".cpp", ".rs", ".sh", ".sql",
	}
}

func (e *TextExtractor) AcceptedMimeTypes() []string {
	return []string{"text/plain", "text/csv", "text/markdown", "application/json"}
}

func (e *TextExtractor) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, &errs.ExtractionError{Filename: filename, Err: fmt.Errorf("file is not valid UTF-8")}
	}
	return &Result{Text: strings.ToValidUTF8(string(data), "")}, nil
}

var _ Extractor = (*TextExtractor)(nil)
