package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"aide/internal/errs"
)

const (
	// maxPDFPages caps how much of a document is extracted; very large PDFs
	// get a truncation notice instead of unbounded processing time.
	maxPDFPages = 100
	// pdfTimeout bounds extraction of the whole document.
	pdfTimeout = 30 * time.Second
)

// PDFExtractor extracts per-page plain text from PDF files.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) AcceptedExtensions() []string {
	return []string{".pdf"}
}

func (e *PDFExtractor) AcceptedMimeTypes() []string {
	return []string{"application/pdf"}
}

// Extract iterates pages up to the cap. Individual page failures are
// swallowed and extraction continues; only a document that cannot be opened
// at all is an error.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte, filename string) (result *Result, err error) {
	// The pdf package panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &errs.ExtractionError{Filename: filename, Err: fmt.Errorf("pdf parser panic: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, pdfTimeout)
	defer cancel()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &errs.ExtractionError{Filename: filename, Err: fmt.Errorf("failed to open pdf: %w", err)}
	}

	numPages := reader.NumPage()
	pages := numPages
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		if ctx.Err() != nil {
			break
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A bad page must not lose the rest of the document.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	if numPages > maxPDFPages {
		sb.WriteString(fmt.Sprintf("\n[Document truncated: %d of %d pages extracted]\n", maxPDFPages, numPages))
	}

	return &Result{Text: sb.String()}, nil
}

var _ Extractor = (*PDFExtractor)(nil)
