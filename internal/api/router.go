package api

import (
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// NewRouter builds the gin engine with CORS, request IDs and the two routes.
func NewRouter(handler *Handler, ginMode string, logger *slog.Logger) *gin.Engine {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.Use(requestID(logger))

	router.GET("/health", handler.Health)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/analyze", handler.Analyze)
	}

	return router
}

// requestID tags every request with a uuid and logs it on completion.
func requestID(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		c.Next()

		if logger != nil {
			logger.Debug("request completed",
				"request_id", id,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
			)
		}
	}
}
