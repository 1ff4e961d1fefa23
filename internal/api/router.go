package api

import (
	"github.com/gin-gonic/gin"
)

// UserIDMiddleware reads the caller identity from the X-User-ID header.
// Real authentication sits in front of this service; an absent header
// maps to a shared anonymous user.
func UserIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			userID = "anonymous"
		}
		c.Set("userID", userID)
		c.Next()
	}
}

// RegisterRoutes mounts all handlers under /api, plus the unauthenticated
// health probe at the root.
func RegisterRoutes(router *gin.Engine, a *API, h *Health) {
	if h != nil {
		router.GET("/health", h.Handler)
	}

	group := router.Group("/api")
	group.Use(UserIDMiddleware())
	{
		group.POST("/chat", a.ChatHandler)
		group.DELETE("/conversations/:id", a.ClearConversationHandler)

		group.POST("/upload", a.UploadHandler)
		group.POST("/ingest-tasks", a.EnqueueIngestTaskHandler)

		group.GET("/memories", a.ListMemoriesHandler)
		group.POST("/memories", a.UpsertMemoryHandler)
		group.DELETE("/memories/:id", a.DeleteMemoryHandler)

		group.GET("/documents", a.ListDocumentsHandler)
		group.DELETE("/documents/:id", a.DeleteDocumentHandler)

		group.GET("/usage/:user", a.UsageHandler)
	}
}
