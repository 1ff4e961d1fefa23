package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"aide/internal/config"
)

// Schema fields of the chunk-embedding collection.
const (
	FieldID        = "chunk_id"
	FieldUserID    = "user_id"
	FieldEmbedding = "embedding"
)

// ScoredID is one vector search hit: a chunk primary key and its
// similarity score.
type ScoredID struct {
	ChunkID string
	Score   float32
}

// Client wraps the Milvus SDK client together with the collection it
// operates on. Callers own the instance; there is no package-level state.
type Client struct {
	conn client.Client
	cfg  *config.MilvusConfig
}

// Connect dials Milvus at the configured address.
func Connect(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("connect to Milvus: %w", err)
	}
	return &Client{conn: c, cfg: cfg}, nil
}

// EnsureCollection creates the chunk-embedding collection and its index if
// they do not exist yet, then loads the collection into memory.
func (c *Client) EnsureCollection(ctx context.Context) error {
	name := c.cfg.Collection
	exists, err := c.conn.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %q: %w", name, err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(name).
			WithDescription("chunk embeddings for retrieval").
			WithField(entity.NewField().
				WithName(FieldID).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(64).
				WithIsPrimaryKey(true)).
			WithField(entity.NewField().
				WithName(FieldUserID).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(64)).
			WithField(entity.NewField().
				WithName(FieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(c.cfg.Dimension)))

		if err := c.conn.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("create collection %q: %w", name, err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 96)
		if err != nil {
			return fmt.Errorf("build HNSW index: %w", err)
		}
		if err := c.conn.CreateIndex(ctx, name, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("create index on %q: %w", FieldEmbedding, err)
		}
	}

	if err := c.conn.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("load collection %q: %w", name, err)
	}
	return nil
}

// InsertVectors stores one embedding per chunk ID. The three slices must
// be the same length.
func (c *Client) InsertVectors(ctx context.Context, chunkIDs, userIDs []string, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) || len(chunkIDs) != len(userIDs) {
		return fmt.Errorf("mismatched insert columns: %d ids, %d users, %d vectors",
			len(chunkIDs), len(userIDs), len(vectors))
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	idCol := entity.NewColumnVarChar(FieldID, chunkIDs)
	userCol := entity.NewColumnVarChar(FieldUserID, userIDs)
	vecCol := entity.NewColumnFloatVector(FieldEmbedding, len(vectors[0]), vectors)

	if _, err := c.conn.Insert(ctx, c.cfg.Collection, "", idCol, userCol, vecCol); err != nil {
		return fmt.Errorf("insert %d vectors: %w", len(chunkIDs), err)
	}
	return nil
}

// Search runs a similarity search scoped to one user and returns the
// matching chunk IDs ordered by score.
func (c *Client) Search(ctx context.Context, userID string, vector []float32, topK int) ([]ScoredID, error) {
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("build search params: %w", err)
	}
	expr := fmt.Sprintf("%s == %q", FieldUserID, userID)

	results, err := c.conn.Search(
		ctx, c.cfg.Collection, nil, expr,
		[]string{FieldID},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding, entity.COSINE, topK, sp,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	var hits []ScoredID
	for _, res := range results {
		for i := 0; i < res.ResultCount; i++ {
			id, err := res.IDs.GetAsString(i)
			if err != nil {
				continue
			}
			hits = append(hits, ScoredID{ChunkID: id, Score: res.Scores[i]})
		}
	}
	return hits, nil
}

// DeleteByChunkIDs removes the embeddings for the given chunk IDs.
func (c *Client) DeleteByChunkIDs(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	quoted := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	expr := fmt.Sprintf("%s in [%s]", FieldID, strings.Join(quoted, ", "))
	if err := c.conn.Delete(ctx, c.cfg.Collection, "", expr); err != nil {
		return fmt.Errorf("delete %d vectors: %w", len(chunkIDs), err)
	}
	return nil
}

// HealthCheck verifies the connection is still usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.conn.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check: %w", err)
	}
	return nil
}

// Close releases the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
