package knowledge

import (
	"context"
	"fmt"

	"aide/internal/embedding"
	"aide/internal/models"
)

// chunkForRepair carries the owning user alongside the chunk row so the
// vector index entry can be scoped correctly.
type chunkForRepair struct {
	models.Chunk
	UserID string
}

// RepairEmbeddings sweeps chunks left without an embedding by a partial
// ingestion failure, embeds their content and backfills both the row and
// the vector index. Content is never touched, only the embedding is
// filled in. Returns the number of chunks repaired.
func (s *Store) RepairEmbeddings(ctx context.Context, embedder embedding.Embedding, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 32
	}

	repaired := 0
	for {
		var pending []chunkForRepair
		err := s.db.WithContext(ctx).
			Model(&models.Chunk{}).
			Select("chunks.*, documents.user_id AS user_id").
			Joins("JOIN documents ON documents.id = chunks.document_id").
			Where("chunks.embedding IS NULL").
			Order("chunks.created_at ASC").
			Limit(batchSize).
			Scan(&pending).Error
		if err != nil {
			return repaired, fmt.Errorf("list unembedded chunks: %w", err)
		}
		if len(pending) == 0 {
			return repaired, nil
		}

		texts := make([]string, len(pending))
		for i, c := range pending {
			texts[i] = c.Content
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return repaired, fmt.Errorf("embed %d pending chunks: %w", len(pending), err)
		}

		ids := make([]string, len(pending))
		users := make([]string, len(pending))
		for i, c := range pending {
			enc, err := EncodeVector(vectors[i])
			if err != nil {
				return repaired, err
			}
			err = s.db.WithContext(ctx).
				Model(&models.Chunk{}).
				Where("id = ?", c.ID).
				Update("embedding", enc).Error
			if err != nil {
				return repaired, fmt.Errorf("backfill chunk %s: %w", c.ID, err)
			}
			ids[i] = c.ID
			users[i] = c.UserID
			repaired++
		}

		if s.vec != nil {
			if err := s.vec.Insert(ctx, ids, users, vectors); err != nil {
				s.log.WithError(err).Warn("vector index backfill failed, rows updated")
			}
		}

		if len(pending) < batchSize {
			return repaired, nil
		}
	}
}
