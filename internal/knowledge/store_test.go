package knowledge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"aide/internal/errs"
	"aide/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Document{}, &models.Chunk{}, &models.MemoryFact{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM chunks")
		db.Exec("DELETE FROM documents")
		db.Exec("DELETE FROM memory_facts")
	})
	return db
}

// fakeIndex records inserts and serves a canned hit list.
type fakeIndex struct {
	inserted  map[string][]float32
	hits      []VectorHit
	searchErr error
	deleted   []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{inserted: make(map[string][]float32)}
}

func (f *fakeIndex) Insert(_ context.Context, chunkIDs, _ []string, vectors [][]float32) error {
	for i, id := range chunkIDs {
		f.inserted[id] = vectors[i]
	}
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []float32, _ int) ([]VectorHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeIndex) Delete(_ context.Context, chunkIDs []string) error {
	f.deleted = append(f.deleted, chunkIDs...)
	return nil
}

func seedDocument(t *testing.T, store *Store, userID string, contents []string, vectors [][]float32) *models.Document {
	t.Helper()
	doc := &models.Document{
		UserID:     userID,
		Title:      "notes.txt",
		SourceType: models.SourceUpload,
	}
	require.NoError(t, store.InsertDocument(context.Background(), doc))
	_, err := store.InsertChunks(context.Background(), doc, contents, vectors)
	require.NoError(t, err)
	return doc
}

func TestInsertChunksAssignsContiguousIndexes(t *testing.T) {
	db := openTestDB(t)
	idx := newFakeIndex()
	store := NewStore(db, idx)

	vec := []float32{0.1, 0.2}
	doc := seedDocument(t, store, "u1",
		[]string{"alpha", "beta", "gamma"},
		[][]float32{vec, nil, vec})

	var rows []models.Chunk
	require.NoError(t, db.Where("document_id = ?", doc.ID).Order("chunk_index ASC").Find(&rows).Error)
	require.Len(t, rows, 3)
	for i, c := range rows {
		assert.Equal(t, i, c.ChunkIndex)
	}

	// middle chunk has no vector yet
	assert.NotEmpty(t, rows[0].Embedding)
	assert.Empty(t, rows[1].Embedding)
	assert.Len(t, idx.inserted, 2)
}

func TestVectorSearchOrdersByHitOrder(t *testing.T) {
	db := openTestDB(t)
	idx := newFakeIndex()
	store := NewStore(db, idx)

	vec := []float32{1, 0}
	doc := seedDocument(t, store, "u1",
		[]string{"first", "second", "third"},
		[][]float32{vec, vec, vec})

	var rows []models.Chunk
	require.NoError(t, db.Where("document_id = ?", doc.ID).Order("chunk_index ASC").Find(&rows).Error)

	// index returns them in reverse
	idx.hits = []VectorHit{
		{ChunkID: rows[2].ID, Score: 0.9},
		{ChunkID: rows[0].ID, Score: 0.5},
	}

	got, err := store.VectorSearch(context.Background(), "u1", vec, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Content)
	assert.Equal(t, "first", got[1].Content)
}

func TestVectorSearchFailureIsRetrievalError(t *testing.T) {
	db := openTestDB(t)
	idx := newFakeIndex()
	idx.searchErr = fmt.Errorf("connection refused")
	store := NewStore(db, idx)

	_, err := store.VectorSearch(context.Background(), "u1", []float32{1}, 5)
	var rerr *errs.RetrievalError
	require.True(t, errors.As(err, &rerr))

	// no index at all behaves the same
	bare := NewStore(db, nil)
	_, err = bare.VectorSearch(context.Background(), "u1", []float32{1}, 5)
	require.True(t, errors.As(err, &rerr))
}

func TestKeywordSearchFindsSubstringWithoutEmbeddings(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, nil)

	seedDocument(t, store, "u1",
		[]string{"the quarterly report is due friday", "unrelated text"}, nil)
	seedDocument(t, store, "u2",
		[]string{"quarterly numbers for another user"}, nil)

	got, err := store.KeywordSearch(context.Background(), "u1", "quarterly report", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Content, "quarterly report")

	got, err = store.KeywordSearch(context.Background(), "u1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteDocumentCascadesAndDropsVectors(t *testing.T) {
	db := openTestDB(t)
	idx := newFakeIndex()
	store := NewStore(db, idx)

	vec := []float32{1}
	doc := seedDocument(t, store, "u1", []string{"a", "b"}, [][]float32{vec, vec})

	require.NoError(t, store.DeleteDocument(context.Background(), "u1", doc.ID))

	var count int64
	require.NoError(t, db.Model(&models.Chunk{}).Where("document_id = ?", doc.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.Document{}).Where("id = ?", doc.ID).Count(&count).Error)
	assert.Zero(t, count)
	assert.Len(t, idx.deleted, 2)

	// someone else's document is untouchable
	other := seedDocument(t, store, "u2", []string{"x"}, nil)
	assert.Error(t, store.DeleteDocument(context.Background(), "u1", other.ID))
}

func TestMemoryUpsertListDelete(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, nil)
	ctx := context.Background()

	m := &models.MemoryFact{
		UserID:     "u1",
		Type:       models.MemoryPreference,
		Content:    "prefers metric units",
		Confidence: 0.7,
		IsActive:   true,
	}
	require.NoError(t, store.UpsertMemory(ctx, m))
	require.NotEmpty(t, m.ID)

	m.Confidence = 0.95
	require.NoError(t, store.UpsertMemory(ctx, m))

	facts, err := store.ListMemories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.InDelta(t, 0.95, facts[0].Confidence, 1e-9)

	// inactive facts are filtered out
	inactive := &models.MemoryFact{
		UserID: "u1", Type: models.MemoryFactType,
		Content: "stale", Confidence: 0.9, IsActive: false,
	}
	require.NoError(t, store.UpsertMemory(ctx, inactive))
	facts, err = store.ListMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, facts, 1)

	require.NoError(t, store.DeleteMemory(ctx, "u1", m.ID))
	assert.Error(t, store.DeleteMemory(ctx, "u1", m.ID))
}

type staticEmbedder struct {
	dim int
}

func (s staticEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, s.dim), nil
}

func (s staticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dim)
	}
	return out, nil
}

func TestRepairEmbeddingsBackfillsNullRows(t *testing.T) {
	db := openTestDB(t)
	idx := newFakeIndex()
	store := NewStore(db, idx)

	vec := []float32{1, 2}
	seedDocument(t, store, "u1",
		[]string{"one", "two", "three"},
		[][]float32{vec, nil, nil})

	repaired, err := store.RepairEmbeddings(context.Background(), staticEmbedder{dim: 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)

	var count int64
	require.NoError(t, db.Model(&models.Chunk{}).Where("embedding IS NULL").Count(&count).Error)
	assert.Zero(t, count)
	assert.Len(t, idx.inserted, 3)

	repaired, err = store.RepairEmbeddings(context.Background(), staticEmbedder{dim: 2}, 2)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}
