package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"HypeScanner/internal/domain"
	"HypeScanner/internal/usecase"
)

// Analyzer is the slice of the classification engine the HTTP layer needs.
type Analyzer interface {
	Classify(ctx context.Context, keyword string) (*domain.ClassificationResult, error)
}

// Handler exposes the classification engine over HTTP.
type Handler struct {
	analyzer Analyzer
	logger   *slog.Logger
}

func NewHandler(analyzer Analyzer, logger *slog.Logger) *Handler {
	return &Handler{analyzer: analyzer, logger: logger}
}

type analyzeRequest struct {
	Keyword string `json:"keyword" binding:"required"`
}

// Analyze handles POST /api/analyze. Validation problems map to 400,
// insufficient collector data to 503, everything else unexpected to 500.
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	result, err := h.analyzer.Classify(c.Request.Context(), req.Keyword)
	if err != nil {
		var validationErr *domain.ValidationError
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{"detail": validationErr.Error()})
		case usecase.IsInsufficientData(err):
			h.logger.Warn("insufficient data", "keyword", req.Keyword, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
		default:
			h.logger.Error("analysis failed", "keyword", req.Keyword, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Analysis failed: %v", err)})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "hypescanner",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
