// Package extract converts uploaded files into raw text. Extractors are
// registered per MIME type and dispatched on the detected type of the actual
// bytes, never on the client-declared one.
package extract

import (
	"context"
	"slices"

	"github.com/gabriel-vasile/mimetype"
)

// Result is the output of one extraction. Description is only set for
// images, where the vision provider also narrates what the image shows.
type Result struct {
	Text        string
	Description string
	// Skipped marks an unsupported file type. The caller treats it as
	// "nothing to ingest", not as a failure.
	Skipped bool
}

// Extractor converts one family of file formats to text.
type Extractor interface {
	AcceptedExtensions() []string
	AcceptedMimeTypes() []string
	Extract(ctx context.Context, data []byte, filename string) (*Result, error)
}

// Registry holds the available extractors and picks one per file.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a Registry with every available extractor registered.
// The vision extractor is optional; pass nil to skip image support.
func NewRegistry(vision *ImageExtractor) *Registry {
	r := &Registry{}
	if vision != nil {
		r.Register(vision)
	}
	r.Register(NewPDFExtractor())
	r.Register(NewDocxExtractor())
	r.Register(NewSpreadsheetExtractor())
	r.Register(NewHTMLExtractor())
	r.Register(NewTextExtractor())
	return r
}

// Register adds an extractor. Earlier registrations win on overlap.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Extract detects the MIME type of data and runs the matching extractor.
// An unsupported type yields an empty, skipped result rather than an error.
func (r *Registry) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	mtype := mimetype.Detect(data)

	for _, e := range r.extractors {
		if accepts(mtype, e.AcceptedExtensions(), e.AcceptedMimeTypes()) {
			return e.Extract(ctx, data, filename)
		}
	}
	return &Result{Skipped: true}, nil
}

func accepts(mtype *mimetype.MIME, extensions, mtypes []string) bool {
	if slices.Contains(extensions, mtype.Extension()) {
		return true
	}
	return slices.ContainsFunc(mtypes, mtype.Is)
}
