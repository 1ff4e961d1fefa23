package knowledge

import (
	"context"

	"aide/internal/database/milvus"
)

// MilvusIndex adapts the Milvus client to the VectorIndex interface.
type MilvusIndex struct {
	client *milvus.Client
}

var _ VectorIndex = (*MilvusIndex)(nil)

func NewMilvusIndex(client *milvus.Client) *MilvusIndex {
	return &MilvusIndex{client: client}
}

func (m *MilvusIndex) Insert(ctx context.Context, chunkIDs, userIDs []string, vectors [][]float32) error {
	return m.client.InsertVectors(ctx, chunkIDs, userIDs, vectors)
}

func (m *MilvusIndex) Search(ctx context.Context, userID string, vector []float32, topK int) ([]VectorHit, error) {
	scored, err := m.client.Search(ctx, userID, vector, topK)
	if err != nil {
		return nil, err
	}
	hits := make([]VectorHit, len(scored))
	for i, s := range scored {
		hits[i] = VectorHit{ChunkID: s.ChunkID, Score: s.Score}
	}
	return hits, nil
}

func (m *MilvusIndex) Delete(ctx context.Context, chunkIDs []string) error {
	return m.client.DeleteByChunkIDs(ctx, chunkIDs)
}
