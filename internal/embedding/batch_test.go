package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/errs"
)

// fakeBackend returns a deterministic vector per text and records batch sizes.
type fakeBackend struct {
	mu         sync.Mutex
	batchSizes []int
	failAfter  int // fail once this many batches have run, 0 disables
	truncate   bool
}

func (f *fakeBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchSizes = append(f.batchSizes, len(texts))
	n := len(f.batchSizes)
	f.mu.Unlock()

	if f.failAfter > 0 && n > f.failAfter {
		return nil, &errs.ProviderError{Provider: "fake", Err: errors.New("boom")}
	}

	out := make([][]float32, len(texts))
	if f.truncate && len(texts) > 1 {
		out = out[:len(texts)-1]
	}
	for i := range out {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%0*d", i+1, 0) // length i+1
	}
	return out
}

func TestBatcherPreservesOrderAndLength(t *testing.T) {
	backend := &fakeBackend{}
	b := NewBatcher(backend, 8, 0)

	in := texts(30)
	vectors, err := b.EmbedBatch(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, vectors, len(in))

	for i, v := range vectors {
		assert.Equal(t, float32(len(in[i])), v[0], "vector %d out of order", i)
	}

	for _, size := range backend.batchSizes {
		assert.LessOrEqual(t, size, 8)
	}
}

func TestBatcherEmptyInput(t *testing.T) {
	b := NewBatcher(&fakeBackend{}, 8, 0)

	vectors, err := b.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestBatcherPropagatesProviderError(t *testing.T) {
	b := NewBatcher(&fakeBackend{failAfter: 1}, 4, 0)

	_, err := b.EmbedBatch(context.Background(), texts(20))
	require.Error(t, err)

	var perr *errs.ProviderError
	assert.True(t, errors.As(err, &perr))
}
