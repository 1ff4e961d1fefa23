// Package ingest turns uploaded files into embedded, searchable chunks.
// Files are independent: one failing is recorded as a note in the
// summary and never aborts the batch.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"aide/internal/chunker"
	"aide/internal/embedding"
	"aide/internal/errs"
	"aide/internal/extract"
	"aide/internal/knowledge"
	"aide/internal/models"
	"aide/pkg/logger"
)

// File is one upload to ingest.
type File struct {
	Name string
	Data []byte
}

// FileResult is the per-file outcome.
type FileResult struct {
	Filename   string `json:"filename" bson:"filename"`
	DocumentID string `json:"document_id,omitempty" bson:"document_id,omitempty"`
	Chunks     int    `json:"chunks" bson:"chunks"`
	Embedded   int    `json:"embedded" bson:"embedded"`
	Skipped    bool   `json:"skipped" bson:"skipped"`
	Failure    string `json:"failure,omitempty" bson:"failure,omitempty"`

	// ocrText feeds OCRContext for image files; it is not persisted.
	ocrText string
}

// Result is what one Ingest call produced.
type Result struct {
	Files []FileResult
	// OCRContext is the combined text pulled out of image files, handed
	// to the current turn so the model can answer about the image
	// immediately.
	OCRContext string
	// Summary is the human-readable per-file report.
	Summary string
}

// ProgressFunc receives coarse per-file progress for UI feedback. It is
// advisory only.
type ProgressFunc func(filename string, percent int)

// Store is the slice of the knowledge store the pipeline writes through.
type Store interface {
	InsertDocument(ctx context.Context, doc *models.Document) error
	InsertChunks(ctx context.Context, doc *models.Document, contents []string, vectors [][]float32) ([]models.Chunk, error)
	DeleteDocument(ctx context.Context, userID, docID string) error
}

var _ Store = (*knowledge.Store)(nil)

// Pipeline wires extraction, chunking, embedding and storage together.
type Pipeline struct {
	extractor *extract.Registry
	chunker   *chunker.Chunker
	embedder  embedding.Embedding
	store     Store
	log       *logger.Logger
}

func NewPipeline(extractor *extract.Registry, ch *chunker.Chunker, embedder embedding.Embedding, store Store) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		store:     store,
		log:       logger.New("ingest", "", ""),
	}
}

// Ingest processes the files sequentially. Within one file the
// embedding calls are batched and pipelined; across files nothing is
// parallel, which keeps memory bounded and progress deterministic.
func (p *Pipeline) Ingest(ctx context.Context, userID string, source models.SourceType, files []File, progress ProgressFunc) *Result {
	out := &Result{}
	var ocrParts []string
	var summary []string

	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		fr := p.ingestOne(ctx, userID, source, f)
		out.Files = append(out.Files, fr)

		switch {
		case fr.Failure != "":
			summary = append(summary, fmt.Sprintf("%s: failed: %s", fr.Filename, fr.Failure))
		case fr.Skipped:
			summary = append(summary, fmt.Sprintf("%s: skipped (unsupported type)", fr.Filename))
		case fr.Embedded < fr.Chunks:
			summary = append(summary, fmt.Sprintf("%s: stored %d chunks, %d awaiting embedding repair",
				fr.Filename, fr.Chunks, fr.Chunks-fr.Embedded))
		default:
			summary = append(summary, fmt.Sprintf("%s: stored %d chunks", fr.Filename, fr.Chunks))
		}
		if fr.ocrText != "" {
			ocrParts = append(ocrParts, fmt.Sprintf("Content of %s:\n%s", fr.Filename, fr.ocrText))
		}

		if progress != nil {
			progress(f.Name, (i+1)*100/len(files))
		}
	}

	out.OCRContext = strings.Join(ocrParts, "\n\n")
	out.Summary = strings.Join(summary, "\n")
	return out
}

func (p *Pipeline) ingestOne(ctx context.Context, userID string, source models.SourceType, f File) FileResult {
	fr := FileResult{Filename: f.Name}

	res, err := p.extractor.Extract(ctx, f.Data, f.Name)
	if err != nil {
		eerr := &errs.ExtractionError{Filename: f.Name, Err: err}
		p.log.WithError(eerr).Warn("extraction failed")
		fr.Failure = eerr.Error()
		return fr
	}
	if res.Skipped {
		fr.Skipped = true
		return fr
	}

	// images: description and extracted text become one embeddable blob
	blob := res.Text
	if res.Description != "" {
		blob = strings.TrimSpace("Image description:\n" + res.Description + "\n\nExtracted text:\n" + res.Text)
		fr.ocrText = strings.TrimSpace(res.Text + "\n" + res.Description)
	}
	if strings.TrimSpace(blob) == "" {
		fr.Skipped = true
		return fr
	}

	contents := p.chunker.Chunk(blob)
	fr.Chunks = len(contents)

	meta, _ := json.Marshal(models.DocumentMetadata{
		Filename: f.Name,
		MIME:     mimetype.Detect(f.Data).String(),
		Size:     int64(len(f.Data)),
	})
	doc := &models.Document{
		UserID:     userID,
		Title:      f.Name,
		SourceType: source,
		Metadata:   meta,
	}
	if err := p.store.InsertDocument(ctx, doc); err != nil {
		fr.Failure = err.Error()
		return fr
	}
	fr.DocumentID = doc.ID

	vectors, err := p.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		// chunks still get stored; the repair sweep fills embeddings later
		p.log.WithError(err).WithField("filename", f.Name).Warn("embedding failed, storing chunks for repair")
		vectors = nil
	}

	chunks, err := p.store.InsertChunks(ctx, doc, contents, vectors)
	if err != nil {
		fr.Failure = err.Error()
		// a document row without chunks is unreachable; remove it
		if derr := p.store.DeleteDocument(ctx, userID, doc.ID); derr != nil {
			p.log.WithError(derr).WithField("document_id", doc.ID).Warn("orphan document cleanup failed")
		}
		fr.DocumentID = ""
		return fr
	}
	for _, c := range chunks {
		if len(c.Embedding) > 0 {
			fr.Embedded++
		}
	}
	return fr
}
