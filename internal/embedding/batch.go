package embedding

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultBatchSize bounds the request payload of one embedding call.
const DefaultBatchSize = 32

// Batcher splits large embedding workloads into fixed-size batches, pipelines
// the batch calls, and reassembles the vectors in input order. It is used by
// the bulk ingestion path; interactive callers embed single texts directly.
type Batcher struct {
	backend   Embedding
	batchSize int
	limiter   *rate.Limiter // optional pacing, nil when disabled
	pipeline  int           // concurrent in-flight batches
}

// NewBatcher wraps backend. batchesPerSecond <= 0 disables pacing.
func NewBatcher(backend Embedding, batchSize int, batchesPerSecond float64) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	b := &Batcher{
		backend:   backend,
		batchSize: batchSize,
		pipeline:  2,
	}
	if batchesPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(batchesPerSecond), 1)
	}
	return b
}

// Embed generates a vector for a single text.
func (b *Batcher) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.backend.Embed(ctx, text)
}

// EmbedBatch embeds texts in batches of at most batchSize each. Batches run
// pipelined; results land in their input positions so order is preserved.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.pipeline)

	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		if b.limiter != nil {
			if err := b.limiter.Wait(gCtx); err != nil {
				return nil, err
			}
		}

		eg.Go(func() error {
			vectors, err := b.backend.EmbedBatch(gCtx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Embedding = (*Batcher)(nil)
