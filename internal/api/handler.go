package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/rag-backend/internal/chat"
	"github.com/xaenox/rag-backend/internal/ingest"
	"github.com/xaenox/rag-backend/internal/query"
	"go.uber.org/zap"
)

const maxPageSize = 100

type Handler struct {
	query  *query.Service
	chat   *chat.Service
	ingest *ingest.Service
	logger *zap.Logger
}

func NewHandler(queryService *query.Service, chatService *chat.Service, ingestService *ingest.Service, logger *zap.Logger) *Handler {
	return &Handler{
		query:  queryService,
		chat:   chatService,
		ingest: ingestService,
		logger: logger,
	}
}

type queryRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"thread_id"`
}

func (h *Handler) SubmitQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}

	result, err := h.query.SubmitQuery(c.Request.Context(), currentUserID(c), req.Question, req.ThreadID)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) respondQueryError(c *gin.Context, err error) {
	var quotaErr *query.QuotaExceededError
	switch {
	case errors.Is(err, query.ErrEmptyQuestion):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Question cannot be empty"})
	case errors.Is(err, query.ErrQuestionTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Question too long"})
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"detail": fmt.Sprintf(
				"Request limit exceeded. You have %d requests remaining out of %d. Please contact support to increase your limit.",
				quotaErr.Remaining, quotaErr.Max),
			"requests_available": quotaErr.Remaining,
			"max_requests":       quotaErr.Max,
		})
	case errors.Is(err, chat.ErrThreadNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Thread not found"})
	default:
		h.logger.Error("Query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to process query"})
	}
}

func (h *Handler) ListThreads(c *gin.Context) {
	page, ok := h.pageParam(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := h.pageSizeParam(c, 10)
	if !ok {
		return
	}
	sortBy := c.DefaultQuery("sort_by", "updated_at")
	sortOrder := c.DefaultQuery("sort_order", "desc")

	threadPage, err := h.chat.ThreadsPage(c.Request.Context(), currentUserID(c), page, pageSize, sortBy, sortOrder)
	if err != nil {
		h.logger.Error("Failed to list threads", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to retrieve threads"})
		return
	}

	c.JSON(http.StatusOK, threadPage)
}

func (h *Handler) GetThread(c *gin.Context) {
	thread, err := h.chat.GetThread(c.Request.Context(), c.Param("id"), currentUserID(c))
	if errors.Is(err, chat.ErrThreadNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Thread not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get thread", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to retrieve thread"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"thread": thread, "success": true})
}

func (h *Handler) ListMessages(c *gin.Context) {
	page, ok := h.pageParam(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := h.pageSizeParam(c, 20)
	if !ok {
		return
	}
	sortOrder := c.DefaultQuery("sort_order", "asc")

	messagePage, err := h.chat.MessagesPage(c.Request.Context(), c.Param("id"), currentUserID(c), page, pageSize, sortOrder)
	if errors.Is(err, chat.ErrThreadNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Thread not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to retrieve messages"})
		return
	}

	c.JSON(http.StatusOK, messagePage)
}

func (h *Handler) DeleteThread(c *gin.Context) {
	threadID := c.Param("id")
	deleted, err := h.chat.DeleteThread(c.Request.Context(), threadID, currentUserID(c))
	if err != nil {
		h.logger.Error("Failed to delete thread", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to delete thread"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Thread not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Thread deleted successfully",
		"thread_id": threadID,
	})
}

func (h *Handler) GetLimits(c *gin.Context) {
	limits, err := h.chat.Limits(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.logger.Error("Failed to get usage limits", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to retrieve limits"})
		return
	}

	c.JSON(http.StatusOK, limits)
}

type ingestRequest struct {
	Path string `json:"path"`
}

func (h *Handler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Path is required"})
		return
	}

	chunks, err := h.ingest.IngestDirectory(c.Request.Context(), req.Path)
	if err != nil {
		h.logger.Error("Ingestion failed", zap.Error(err), zap.String("path", req.Path))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Ingestion failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "chunks": chunks})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "RAG Chatbot Backend"})
}

func (h *Handler) pageParam(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.DefaultQuery(name, strconv.Itoa(fallback))
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Invalid %s parameter", name)})
		return 0, false
	}
	return value, true
}

func (h *Handler) pageSizeParam(c *gin.Context, fallback int) (int, bool) {
	raw := c.DefaultQuery("page_size", strconv.Itoa(fallback))
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 || value > maxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid page_size parameter"})
		return 0, false
	}
	return value, true
}
