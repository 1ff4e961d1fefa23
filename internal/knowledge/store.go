// Package knowledge persists documents, chunks and memory facts, and
// serves retrieval over them. Relational rows live in MySQL via gorm;
// chunk embeddings live in a vector index. Vector search is the preferred
// retrieval path and keyword search is the degraded fallback.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"aide/internal/errs"
	"aide/internal/models"
	"aide/pkg/logger"
)

// VectorHit is one similarity-search result from the vector index.
type VectorHit struct {
	ChunkID string
	Score   float32
}

// VectorIndex abstracts the vector side of the store so the relational
// logic can be tested without a running Milvus.
type VectorIndex interface {
	Insert(ctx context.Context, chunkIDs, userIDs []string, vectors [][]float32) error
	Search(ctx context.Context, userID string, vector []float32, topK int) ([]VectorHit, error)
	Delete(ctx context.Context, chunkIDs []string) error
}

// Store is the hybrid knowledge store.
type Store struct {
	db  *gorm.DB
	vec VectorIndex
	log *logger.Logger
}

// NewStore builds a store over the given handles. vec may be nil, in
// which case VectorSearch always reports a retrieval error and callers
// fall back to KeywordSearch.
func NewStore(db *gorm.DB, vec VectorIndex) *Store {
	return &Store{db: db, vec: vec, log: logger.New("knowledge", "", "")}
}

// EncodeVector serializes an embedding for the relational row.
func EncodeVector(v []float32) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return datatypes.JSON(b), nil
}

// DecodeVector parses an embedding column; returns nil for a null column.
func DecodeVector(j datatypes.JSON) ([]float32, error) {
	if len(j) == 0 {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal(j, &v); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return v, nil
}

// InsertDocument persists a new document row. The ID is assigned when
// empty. Documents are immutable after creation except for deletion.
func (s *Store) InsertDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("insert document %q: %w", doc.Title, err)
	}
	return nil
}

// InsertChunks stores one chunk row per content item with contiguous
// indexes starting at 0, and pushes the non-nil vectors into the vector
// index. vectors may be nil or shorter than contents; chunks without a
// vector are stored with a null embedding and picked up later by
// RepairEmbeddings.
func (s *Store) InsertChunks(ctx context.Context, doc *models.Document, contents []string, vectors [][]float32) ([]models.Chunk, error) {
	if len(contents) == 0 {
		return nil, nil
	}

	chunks := make([]models.Chunk, len(contents))
	var embeddedIDs []string
	var embeddedUsers []string
	var embedded [][]float32

	for i, content := range contents {
		chunk := models.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    content,
			CreatedAt:  time.Now(),
		}
		if i < len(vectors) && vectors[i] != nil {
			enc, err := EncodeVector(vectors[i])
			if err != nil {
				return nil, err
			}
			chunk.Embedding = enc
			embeddedIDs = append(embeddedIDs, chunk.ID)
			embeddedUsers = append(embeddedUsers, doc.UserID)
			embedded = append(embedded, vectors[i])
		}
		chunks[i] = chunk
	}

	if err := s.db.WithContext(ctx).Create(&chunks).Error; err != nil {
		return nil, fmt.Errorf("insert %d chunks for document %s: %w", len(chunks), doc.ID, err)
	}

	if s.vec != nil && len(embeddedIDs) > 0 {
		if err := s.vec.Insert(ctx, embeddedIDs, embeddedUsers, embedded); err != nil {
			// Rows are in place with their embeddings; the index entry is
			// rebuilt by the repair sweep, so this is not fatal.
			s.log.WithError(err).Warn("vector index insert failed, rows kept for repair")
		}
	}
	return chunks, nil
}

// VectorSearch embeds nothing itself; it takes a query vector and returns
// the matching chunks in similarity order. Index failures come back as a
// RetrievalError so callers know to fall back to KeywordSearch.
func (s *Store) VectorSearch(ctx context.Context, userID string, queryVec []float32, k int) ([]models.Chunk, error) {
	if s.vec == nil {
		return nil, &errs.RetrievalError{Err: fmt.Errorf("vector index not configured")}
	}
	hits, err := s.vec.Search(ctx, userID, queryVec, k)
	if err != nil {
		return nil, &errs.RetrievalError{Err: err}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	var rows []models.Chunk
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, &errs.RetrievalError{Err: fmt.Errorf("load chunks for hits: %w", err)}
	}

	byID := make(map[string]models.Chunk, len(rows))
	for _, c := range rows {
		byID[c.ID] = c
	}
	ordered := make([]models.Chunk, 0, len(hits))
	for _, h := range hits {
		if c, ok := byID[h.ChunkID]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// KeywordSearch is the substring fallback used when vector search is
// unavailable. Matching is a plain LIKE over chunk content, scoped to the
// user's documents.
func (s *Store) KeywordSearch(ctx context.Context, userID, term string, k int) ([]models.Chunk, error) {
	if term == "" {
		return nil, nil
	}
	var rows []models.Chunk
	err := s.db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Where("documents.user_id = ?", userID).
		Where("chunks.content LIKE ?", "%"+term+"%").
		Order("chunks.created_at DESC").
		Limit(k).
		Find(&rows).Error
	if err != nil {
		return nil, &errs.RetrievalError{Err: fmt.Errorf("keyword search: %w", err)}
	}
	return rows, nil
}

// ListDocuments returns the user's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes the document and its chunks in one transaction,
// then drops the chunk vectors best-effort. A failed vector drop leaves
// dangling index entries that never match a relational row, which the
// search path tolerates.
func (s *Store) DeleteDocument(ctx context.Context, userID, docID string) error {
	var chunkIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if err := tx.Where("id = ? AND user_id = ?", docID, userID).First(&doc).Error; err != nil {
			return fmt.Errorf("find document %s: %w", docID, err)
		}
		if err := tx.Model(&models.Chunk{}).
			Where("document_id = ?", docID).
			Pluck("id", &chunkIDs).Error; err != nil {
			return fmt.Errorf("collect chunk ids: %w", err)
		}
		if err := tx.Where("document_id = ?", docID).Delete(&models.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		if err := tx.Delete(&doc).Error; err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.vec != nil && len(chunkIDs) > 0 {
		if err := s.vec.Delete(ctx, chunkIDs); err != nil {
			s.log.WithError(err).WithField("document_id", docID).
				Warn("vector drop failed after document delete")
		}
	}
	return nil
}
