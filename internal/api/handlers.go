// Package api is the thin HTTP surface over the orchestrator and the
// knowledge store. Authentication is out of scope; callers identify
// themselves with the X-User-ID header.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"aide/internal/assembler"
	"aide/internal/history"
	"aide/internal/ingest"
	"aide/internal/knowledge"
	"aide/internal/llm"
	"aide/internal/models"
	"aide/internal/orchestrator"
	"aide/internal/usage"
	"aide/pkg/logger"
)

// maxUploadBytes bounds one upload request.
const maxUploadBytes = 64 << 20

// API bundles the services the handlers dispatch into.
type API struct {
	agent     models.AgentConfig
	provider  llm.Provider
	orch      *orchestrator.Orchestrator
	assembler *assembler.Assembler
	pipeline  *ingest.Pipeline
	store     *knowledge.Store
	history   *history.Store
	ledger    *usage.Ledger
	queue     *ingest.TaskPublisher
	log       *logger.Logger
}

func New(agent models.AgentConfig, provider llm.Provider, orch *orchestrator.Orchestrator,
	asm *assembler.Assembler, pipeline *ingest.Pipeline, store *knowledge.Store,
	hist *history.Store, ledger *usage.Ledger, queue *ingest.TaskPublisher) *API {
	return &API{
		agent:     agent,
		provider:  provider,
		orch:      orch,
		assembler: asm,
		pipeline:  pipeline,
		store:     store,
		history:   hist,
		ledger:    ledger,
		queue:     queue,
		log:       logger.New("api", "", ""),
	}
}

type chatRequest struct {
	ConversationID string              `json:"conversation_id"`
	Message        string              `json:"message"`
	Profile        *models.UserProfile `json:"profile,omitempty"`
}

// ChatHandler runs one assistant turn.
func (a *API) ChatHandler(c *gin.Context) {
	userID := c.GetString("userID")

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	ctx := c.Request.Context()
	turnID := uuid.NewString()
	log := logger.New("api", turnID, userID)

	var prior []models.Message
	if a.history != nil {
		var err error
		prior, err = a.history.Load(ctx, req.ConversationID)
		if err != nil {
			log.WithError(err).Warn("history load failed, starting fresh")
		}
	}

	system := a.agent.SystemPrompt
	if fragment := a.assembler.Assemble(ctx, userID, req.Message, req.Profile); fragment != "" {
		system = strings.TrimSpace(system + "\n\n" + fragment)
	}

	msgs := make([]models.Message, 0, len(prior)+2)
	msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: system})
	msgs = append(msgs, prior...)
	userMsg := models.Message{Role: models.RoleUser, Content: req.Message}
	msgs = append(msgs, userMsg)

	reply, err := a.orch.RunTurn(ctx, a.provider, &orchestrator.TurnRequest{
		UserID:      userID,
		TurnID:      turnID,
		Model:       a.agent.Model,
		Temperature: a.agent.Temperature,
		Messages:    msgs,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// the client went away; no body to write
			c.Status(http.StatusRequestTimeout)
			return
		}
		log.WithError(err).Error("turn failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "the assistant could not complete this request"})
		return
	}

	if a.history != nil {
		assistantMsg := models.Message{Role: models.RoleAssistant, Content: reply}
		if err := a.history.Append(ctx, req.ConversationID, userMsg, assistantMsg); err != nil {
			log.WithError(err).Warn("history append failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": req.ConversationID,
		"reply":           reply,
	})
}

// UploadHandler ingests one or more files from a multipart form.
func (a *API) UploadHandler(c *gin.Context) {
	userID := c.GetString("userID")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form with a files field is required"})
		return
	}
	parts := form.File["files"]
	if len(parts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	files, err := readUploadParts(parts, maxUploadBytes)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := a.pipeline.Ingest(c.Request.Context(), userID, models.SourceUpload, files, nil)

	resp := gin.H{
		"files":   result.Files,
		"summary": result.Summary,
	}
	if result.OCRContext != "" {
		resp["ocr_context"] = result.OCRContext
	}
	c.JSON(http.StatusOK, resp)
}

var errUploadTooLarge = errors.New("upload too large")

// readUploadParts drains the multipart files while counting the bytes
// actually read. The size a client declares in the part header is not
// trusted; the bound holds even when the header lies.
func readUploadParts(parts []*multipart.FileHeader, limit int64) ([]ingest.File, error) {
	var files []ingest.File
	remaining := limit
	for _, part := range parts {
		src, err := part.Open()
		if err != nil {
			return nil, fmt.Errorf("unreadable file %s", part.Filename)
		}
		data, err := io.ReadAll(io.LimitReader(src, remaining+1))
		src.Close()
		if err != nil {
			return nil, fmt.Errorf("unreadable file %s", part.Filename)
		}
		if int64(len(data)) > remaining {
			return nil, errUploadTooLarge
		}
		remaining -= int64(len(data))
		files = append(files, ingest.File{Name: part.Filename, Data: data})
	}
	return files, nil
}

// ClearConversationHandler drops the stored history of one conversation.
func (a *API) ClearConversationHandler(c *gin.Context) {
	if a.history != nil {
		if err := a.history.Clear(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear conversation"})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

type ingestTaskRequest struct {
	Bucket  string   `json:"bucket"`
	Objects []string `json:"objects"`
}

// EnqueueIngestTaskHandler queues a bulk ingestion job against objects
// already sitting in the shared bucket. The worker binary picks it up and
// writes a per-task report.
func (a *API) EnqueueIngestTaskHandler(c *gin.Context) {
	if a.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bulk ingestion is not configured"})
		return
	}
	var req ingestTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Bucket == "" || len(req.Objects) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bucket and objects are required"})
		return
	}
	taskID, err := a.queue.Enqueue(c.Request.Context(), &ingest.Task{
		UserID:  c.GetString("userID"),
		Bucket:  req.Bucket,
		Objects: req.Objects,
	})
	if err != nil {
		a.log.WithError(err).Error("enqueue ingestion task failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to queue ingestion task"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

// ListMemoriesHandler returns the user's active memory facts.
func (a *API) ListMemoriesHandler(c *gin.Context) {
	facts, err := a.store.ListMemories(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list memories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": facts})
}

// UpsertMemoryHandler creates or updates a memory fact.
func (a *API) UpsertMemoryHandler(c *gin.Context) {
	var fact models.MemoryFact
	if err := c.ShouldBindJSON(&fact); err != nil || strings.TrimSpace(fact.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "memory content is required"})
		return
	}
	fact.UserID = c.GetString("userID")
	if fact.Type == "" {
		fact.Type = models.MemoryFactType
	}
	if err := a.store.UpsertMemory(c.Request.Context(), &fact); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store memory"})
		return
	}
	c.JSON(http.StatusOK, fact)
}

// DeleteMemoryHandler removes one memory fact.
func (a *API) DeleteMemoryHandler(c *gin.Context) {
	err := a.store.DeleteMemory(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "memory not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListDocumentsHandler returns the user's ingested documents.
func (a *API) ListDocumentsHandler(c *gin.Context) {
	docs, err := a.store.ListDocuments(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// DeleteDocumentHandler removes a document and its chunks.
func (a *API) DeleteDocumentHandler(c *gin.Context) {
	err := a.store.DeleteDocument(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UsageHandler reports accumulated token usage and cost per model.
func (a *API) UsageHandler(c *gin.Context) {
	reports, err := a.ledger.ListUsage(c.Request.Context(), c.Param("user"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": reports})
}
