package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"aide/internal/ingest"
	"aide/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func parseParts(t *testing.T, contents map[string][]byte) []*multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, data := range contents {
		fw, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["files"]
}

func TestReadUploadPartsCountsActualBytes(t *testing.T) {
	parts := parseParts(t, map[string][]byte{"a.txt": bytes.Repeat([]byte("x"), 100)})

	files, err := readUploadParts(parts, 200)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Len(t, files[0].Data, 100)

	_, err = readUploadParts(parts, 99)
	assert.ErrorIs(t, err, errUploadTooLarge)
}

func TestReadUploadPartsLimitSpansFiles(t *testing.T) {
	parts := parseParts(t, map[string][]byte{
		"a.txt": bytes.Repeat([]byte("x"), 60),
		"b.txt": bytes.Repeat([]byte("y"), 60),
	})

	_, err := readUploadParts(parts, 100)
	assert.ErrorIs(t, err, errUploadTooLarge)

	files, err := readUploadParts(parts, 120)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestClearConversationWithoutHistoryStore(t *testing.T) {
	router := gin.New()
	RegisterRoutes(router, New(models.AgentConfig{}, nil, nil, nil, nil, nil, nil, nil, nil), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/conversations/c-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

type capturingQueue struct {
	value []byte
}

func (q *capturingQueue) Publish(_ context.Context, _, value []byte) error {
	q.value = value
	return nil
}

func TestEnqueueIngestTask(t *testing.T) {
	q := &capturingQueue{}
	router := gin.New()
	RegisterRoutes(router, New(models.AgentConfig{}, nil, nil, nil, nil, nil, nil, nil,
		ingest.NewTaskPublisher(q)), nil)

	body, _ := json.Marshal(map[string]any{"bucket": "uploads", "objects": []string{"a.pdf"}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ingest-tasks", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "u1")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["task_id"])

	var task ingest.Task
	require.NoError(t, json.Unmarshal(q.value, &task))
	assert.Equal(t, "u1", task.UserID)
	assert.Equal(t, "uploads", task.Bucket)
}

func TestEnqueueIngestTaskValidation(t *testing.T) {
	router := gin.New()
	RegisterRoutes(router, New(models.AgentConfig{}, nil, nil, nil, nil, nil, nil, nil,
		ingest.NewTaskPublisher(&capturingQueue{})), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ingest-tasks", bytes.NewReader([]byte(`{"bucket":""}`)))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// no queue configured
	router = gin.New()
	RegisterRoutes(router, New(models.AgentConfig{}, nil, nil, nil, nil, nil, nil, nil, nil), nil)
	w = httptest.NewRecorder()
	body, _ := json.Marshal(map[string]any{"bucket": "b", "objects": []string{"x"}})
	req = httptest.NewRequest(http.MethodPost, "/api/ingest-tasks", bytes.NewReader(body))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthReportsConfiguredBackends(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	router := gin.New()
	RegisterRoutes(router, New(models.AgentConfig{}, nil, nil, nil, nil, nil, nil, nil, nil),
		&Health{DB: db})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var report map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "ok", report["mysql"])
	assert.NotContains(t, report, "milvus")
	assert.NotContains(t, report, "redis")
}
