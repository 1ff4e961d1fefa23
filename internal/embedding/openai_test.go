package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/errs"
)

// embeddingServer answers /embeddings with one vector per input, optionally
// dropping the last one to simulate silent truncation.
func embeddingServer(t *testing.T, truncate bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		n := len(req.Input)
		if truncate && n > 1 {
			n--
		}
		data := make([]item, n)
		for i := range data {
			data[i] = item{Embedding: []float32{0.1, 0.2}, Index: i}
		}
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	}))
}

func TestOpenAIModelEmbedBatch(t *testing.T) {
	srv := embeddingServer(t, false)
	defer srv.Close()

	m, err := NewOpenAIModel("test-key", "text-embedding-3-small", srv.URL+"/v1")
	require.NoError(t, err)

	vectors, err := m.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
}

func TestOpenAIModelTruncatedResponseIsProviderError(t *testing.T) {
	srv := embeddingServer(t, true)
	defer srv.Close()

	m, err := NewOpenAIModel("test-key", "text-embedding-3-small", srv.URL+"/v1")
	require.NoError(t, err)

	_, err = m.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)

	var perr *errs.ProviderError
	assert.True(t, errors.As(err, &perr))
}
