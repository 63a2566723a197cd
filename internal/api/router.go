package api

import (
	"github.com/gin-gonic/gin"
	"github.com/xaenox/rag-backend/internal/auth"
	"go.uber.org/zap"
)

// NewRouter assembles the HTTP surface: an open health check plus the
// authenticated /api/v1 group.
func NewRouter(handler *Handler, verifier auth.Verifier, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(logger))
	engine.Use(CORS())

	engine.GET("/health", handler.Health)

	v1 := engine.Group("/api/v1")
	v1.Use(RequireAuth(verifier, logger))
	{
		v1.POST("/query", handler.SubmitQuery)
		v1.POST("/ingest", handler.Ingest)

		chat := v1.Group("/chat")
		{
			chat.GET("/threads", handler.ListThreads)
			chat.GET("/threads/:id", handler.GetThread)
			chat.GET("/threads/:id/messages", handler.ListMessages)
			chat.DELETE("/threads/:id", handler.DeleteThread)
			chat.GET("/limits", handler.GetLimits)
		}
	}

	return engine
}
